package daemon

import (
	"sync"

	"github.com/fluxcd/shepherd/pkg/api"
)

// status keeps the record of the last finished pass, for the API.
type status struct {
	mu   sync.RWMutex
	last *api.PassStatus
}

func (s *status) set(p api.PassStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &p
}

func (s *status) get() (api.PassStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return api.PassStatus{}, false
	}
	return *s.last, true
}
