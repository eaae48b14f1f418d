package proc

import (
	"context"
	"errors"
	"io"
	"sync"
)

// SourceHandle is an opened playable source. Either Input is set and the
// sink opens it by name, or Reader carries the bytes.
type SourceHandle struct {
	Input  string
	Reader io.Reader

	closer io.Closer
	once   sync.Once
}

// Close releases the process or file behind the handle. Safe to call twice.
func (h *SourceHandle) Close() error {
	if h == nil {
		return nil
	}
	var err error
	h.once.Do(func() {
		if h.closer != nil {
			err = h.closer.Close()
		}
	})
	return err
}

// Opener turns a track's Source into something a sink can play.
type Opener interface {
	Open(ctx context.Context, src Source) (*SourceHandle, error)
}

// SourceOpener pipes extractor sources through yt-dlp and hands direct
// URLs and files to the sink untouched.
type SourceOpener struct{}

func (SourceOpener) Open(ctx context.Context, src Source) (*SourceHandle, error) {
	if src.Input == "" {
		return nil, errors.New("empty source")
	}
	switch src.Kind {
	case SourceExtractor:
		s, err := openExtractorStream(ctx, src.Input)
		if err != nil {
			return nil, err
		}
		return &SourceHandle{Reader: s, closer: s}, nil
	case SourceDirect, SourceFile:
		return &SourceHandle{Input: src.Input}, nil
	default:
		return nil, errors.New("unknown source kind")
	}
}
