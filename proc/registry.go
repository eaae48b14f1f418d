package proc

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/tempo/sys"
)

// Registry owns every guild's scheduler, creating them on first use.
type Registry struct {
	mu      sync.Mutex
	guilds  map[snowflake.ID]*Guild
	mirrors map[snowflake.ID]*Mirror
	cfg     GuildConfig
	deps    GuildDeps

	// OnCreate runs for every new guild, outside the registry lock.
	OnCreate func(g *Guild)
}

func NewRegistry(cfg GuildConfig, deps GuildDeps) *Registry {
	return &Registry{
		guilds:  make(map[snowflake.ID]*Guild),
		mirrors: make(map[snowflake.ID]*Mirror),
		cfg:     cfg,
		deps:    deps,
	}
}

// Get returns the guild's scheduler, creating it if needed.
func (r *Registry) Get(id snowflake.ID) *Guild {
	r.mu.Lock()
	g, ok := r.guilds[id]
	if !ok {
		g = NewGuild(id, r.cfg, r.deps)
		r.guilds[id] = g
	}
	r.mu.Unlock()

	if !ok {
		sys.LogPlayer(sys.MsgPlayerGuildCreated, id)
		if r.OnCreate != nil {
			r.OnCreate(g)
		}
	}
	return g
}

// Lookup returns the guild's scheduler without creating one.
func (r *Registry) Lookup(id snowflake.ID) (*Guild, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guilds[id]
	return g, ok
}

// Remove tears a guild down, detaching its mirror first.
func (r *Registry) Remove(id snowflake.ID) {
	r.mu.Lock()
	g, ok := r.guilds[id]
	m := r.mirrors[id]
	delete(r.guilds, id)
	delete(r.mirrors, id)
	r.mu.Unlock()

	if m != nil {
		m.Detach()
	}
	if ok {
		g.Close()
		sys.LogPlayer(sys.MsgPlayerGuildRemoved, id)
	}
}

// Shutdown tears down every guild concurrently.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	ids := make([]snowflake.ID, 0, len(r.guilds))
	for id := range r.guilds {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Remove(id)
		}()
	}
	wg.Wait()
}

// AttachMirror puts a live player view on surface, replacing any mirror
// the guild already had.
func (r *Registry) AttachMirror(ctx context.Context, guildID snowflake.ID, surface Surface) (*Mirror, error) {
	g := r.Get(guildID)
	m := newMirror(g, surface)
	if err := m.attach(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.mirrors[guildID]
	r.mirrors[guildID] = m
	r.mu.Unlock()

	if old != nil {
		old.Detach()
	}
	return m, nil
}

// Mirror returns the guild's attached mirror, if any.
func (r *Registry) Mirror(guildID snowflake.ID) (*Mirror, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mirrors[guildID]
	return m, ok
}

// DetachMirror removes the guild's mirror if it is still m.
func (r *Registry) DetachMirror(guildID snowflake.ID, m *Mirror) {
	r.mu.Lock()
	if r.mirrors[guildID] == m {
		delete(r.mirrors, guildID)
	}
	r.mu.Unlock()
	m.Detach()
}

// Activity counts guilds with a current track and tracks queued across
// every guild.
func (r *Registry) Activity() (playing, queued int) {
	r.mu.Lock()
	gs := make([]*Guild, 0, len(r.guilds))
	for _, g := range r.guilds {
		gs = append(gs, g)
	}
	r.mu.Unlock()

	for _, g := range gs {
		st := g.Snapshot()
		if st.Current != nil {
			playing++
		}
		queued += len(st.Queue)
	}
	return playing, queued
}
