package recv

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Group runs a named set of receive Streams' transport loops together.
// When one loop fails, its own Stream is stopped at once and the shared
// context is cancelled for the others; once every loop has returned,
// every registered Stream is stopped. A caller listening on several
// sockets/ports for one logical data product thus tears the whole
// group down on the first failure rather than leaking the others.
type Group struct {
	mu      sync.Mutex
	streams map[string]*Stream
}

// NewGroup returns an empty Group.
func NewGroup() *Group {
	return &Group{streams: make(map[string]*Stream)}
}

// Add registers a Stream under name so StopAll can reach it.
func (g *Group) Add(name string, s *Stream) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.streams[name] = s
}

// Run starts loops[name](ctx) for every entry concurrently. If any
// loop returns a non-nil error, ctx is cancelled for the rest and
// every registered Stream's Stop is called. Run returns the first
// non-nil error, or nil once all loops have returned cleanly.
func (g *Group) Run(ctx context.Context, loops map[string]func(context.Context) error) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for name, loop := range loops {
		name, loop := name, loop
		eg.Go(func() error {
			err := loop(egCtx)
			if err != nil {
				g.stopNamed(name)
			}
			return err
		})
	}
	err := eg.Wait()
	g.StopAll()
	return err
}

// StopAll calls Stop on every registered Stream.
func (g *Group) StopAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.streams {
		s.Stop()
	}
}

func (g *Group) stopNamed(name string) {
	g.mu.Lock()
	s, ok := g.streams[name]
	g.mu.Unlock()
	if ok {
		s.Stop()
	}
}
