package ws

import "sync"

// ActivityIndicator is told when network exchanges start and finish, for
// example to drive a busy indicator in a user interface.
type ActivityIndicator interface {
	Begin()
	End()
}

// ActivityCounter is an ActivityIndicator that stays active while at least
// one exchange is running. OnChange, when set, is called on every transition
// between idle and active.
type ActivityCounter struct {
	OnChange func(active bool)

	mu      sync.Mutex
	running int
}

func (a *ActivityCounter) Begin() {
	a.mu.Lock()
	a.running++
	changed := a.running == 1
	a.mu.Unlock()
	if changed && a.OnChange != nil {
		a.OnChange(true)
	}
}

func (a *ActivityCounter) End() {
	a.mu.Lock()
	if a.running == 0 {
		a.mu.Unlock()
		return
	}
	a.running--
	changed := a.running == 0
	a.mu.Unlock()
	if changed && a.OnChange != nil {
		a.OnChange(false)
	}
}

// Active reports whether an exchange is in progress
func (a *ActivityCounter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running > 0
}
