package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/pspoerri/mrspyramid/internal/store"
)

// source is an opened pyramid. It is closed once it has been evicted and
// no request holds it.
type source struct {
	name     string
	provider store.Provider
	meta     store.Metadata
	reader   store.TileReader

	refs    int
	evicted bool
}

func (s *source) close() error {
	return errors.Join(s.reader.Close(), s.provider.Close())
}

// evict is the eviction callback of s.sources. It runs with s.mu held.
func (s *Server) evict(name string, src *source) {
	src.evicted = true
	if src.refs == 0 {
		s.closeSource(src)
	}
}

func (s *Server) closeSource(src *source) {
	if err := src.close(); err != nil {
		s.log.Warn().Err(err).Str("pyramid", src.name).Msg("Closing pyramid")
		return
	}
	s.log.Debug().Str("pyramid", src.name).Msg("Pyramid closed")
}

// source returns the opened pyramid called name, opening it on first use.
// The caller must call release when done with it.
func (s *Server) source(ctx context.Context, name string) (*source, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources.Get(name)
	if !ok {
		var err error
		if src, err = s.open(ctx, name); err != nil {
			return nil, nil, err
		}
		s.sources.Add(name, src)
	}
	src.refs++
	return src, func() { s.release(src) }, nil
}

func (s *Server) release(src *source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src.refs--
	if src.refs == 0 && src.evicted {
		s.closeSource(src)
	}
}

func (s *Server) open(ctx context.Context, name string) (*source, error) {
	p, err := s.opts.Registry.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	meta, err := p.Metadata(ctx)
	if err == nil {
		err = meta.Validate()
	}
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("pyramid %s: %w", name, err)
	}
	r, err := p.OpenReader(ctx)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("pyramid %s: %w", name, err)
	}
	if s.opts.CacheTiles > 0 {
		cached, err := store.NewCachedReader(r, s.opts.CacheTiles, s.set)
		if err != nil {
			r.Close()
			p.Close()
			return nil, err
		}
		r = cached
	}

	s.log.Info().Str("pyramid", name).Int("max_zoom", meta.MaxZoom).Msg("Pyramid opened")
	return &source{name: name, provider: p, meta: meta, reader: r}, nil
}
