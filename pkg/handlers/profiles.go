package handlers

import (
	"strings"
	"sync"

	"github.com/delist-labs/delist/pkg/contracts"
)

// ProfileStore holds per-controller automation hints. Lookup order: exact
// controller id, then domain substring against the target URL, then nil
// (handlers fall back to their built-in selectors).
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*contracts.ControllerProfile
}

// NewProfileStore returns an empty store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]*contracts.ControllerProfile)}
}

// Put installs a profile.
func (s *ProfileStore) Put(p *contracts.ControllerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ControllerID] = p
}

// Lookup resolves the profile for a controller and target URL.
func (s *ProfileStore) Lookup(controllerID, targetURL string) *contracts.ControllerProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[controllerID]; ok {
		return p
	}
	lower := strings.ToLower(targetURL)
	for _, p := range s.profiles {
		for _, d := range p.Domains {
			if d != "" && strings.Contains(lower, strings.ToLower(d)) {
				return p
			}
		}
	}
	return nil
}
