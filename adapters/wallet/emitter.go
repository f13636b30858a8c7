package wallet

import (
	"sync"

	"github.com/layer-3/verisafe/core"
)

// Emitter fans provider events out to subscribers. Listeners run outside the
// lock so they may call back into the provider.
type Emitter struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(core.ProviderEvent)
}

func (e *Emitter) Subscribe(fn func(core.ProviderEvent)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subs == nil {
		e.subs = make(map[int]func(core.ProviderEvent))
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered listeners.
func (e *Emitter) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Emit delivers ev to every listener.
func (e *Emitter) Emit(ev core.ProviderEvent) {
	e.mu.Lock()
	fns := make([]func(core.ProviderEvent), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
