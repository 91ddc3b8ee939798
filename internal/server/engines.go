package server

import (
	"context"
	"sync"

	"github.com/jmvargas/charla/internal/engine"
)

// engineRegistry shares one running engine per user across concurrent
// websocket streams, stopping it when the last stream goes away.
type engineRegistry struct {
	mu      sync.Mutex
	opts    engine.Options
	engines map[string]*engineRef
}

type engineRef struct {
	engine *engine.Engine
	refs   int
}

func newEngineRegistry(opts engine.Options) *engineRegistry {
	return &engineRegistry{
		opts:    opts,
		engines: make(map[string]*engineRef),
	}
}

func (r *engineRegistry) acquire(s *Server, email string) (*engine.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ref, ok := r.engines[email]; ok {
		ref.refs++
		return ref.engine, nil
	}

	// The engine outlives the request that started it; it stops when the
	// last stream releases it.
	eng := engine.New(s.store, email, r.opts)
	if err := eng.Start(context.Background()); err != nil {
		return nil, err
	}
	r.engines[email] = &engineRef{engine: eng, refs: 1}
	return eng, nil
}

func (r *engineRegistry) release(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, ok := r.engines[email]
	if !ok {
		return
	}
	ref.refs--
	if ref.refs > 0 {
		return
	}
	delete(r.engines, email)
	ref.engine.Stop()
}

func (r *engineRegistry) stopAll() {
	r.mu.Lock()
	refs := make([]*engineRef, 0, len(r.engines))
	for _, ref := range r.engines {
		refs = append(refs, ref)
	}
	r.engines = make(map[string]*engineRef)
	r.mu.Unlock()

	for _, ref := range refs {
		ref.engine.Stop()
	}
}
