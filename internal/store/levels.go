package store

import (
	"sync"

	"github.com/pspoerri/mrspyramid/internal/coord"
)

// LevelTracker accumulates the extent of the tiles a writer receives so the
// metadata it persists describes what was actually written.
type LevelTracker struct {
	mu     sync.Mutex
	levels map[int]coord.TileBounds
}

// Add records tile z/x/y.
func (l *LevelTracker) Add(z int, x, y int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.levels == nil {
		l.levels = make(map[int]coord.TileBounds)
	}
	b, ok := l.levels[z]
	if !ok {
		b = coord.EmptyTileBounds()
	}
	l.levels[z] = b.ExpandToInclude(x, y)
}

// Apply returns meta with its levels replaced by the tracked extents. The
// zoom range is left untouched when nothing was written.
func (l *LevelTracker) Apply(meta Metadata) Metadata {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.levels) == 0 {
		return meta
	}
	meta.Levels = nil
	for z, b := range l.levels {
		meta.SetLevel(z, b)
	}
	return meta
}
