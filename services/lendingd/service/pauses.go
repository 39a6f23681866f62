package service

import "sync"

// Pauses is a module pause view operators can flip at runtime.
type Pauses struct {
	mu      sync.RWMutex
	modules map[string]bool
}

func NewPauses(initial map[string]bool) *Pauses {
	p := &Pauses{modules: make(map[string]bool, len(initial))}
	for module, paused := range initial {
		p.modules[module] = paused
	}
	return p
}

func (p *Pauses) IsPaused(module string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modules[module]
}

func (p *Pauses) Set(module string, paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modules[module] = paused
}
