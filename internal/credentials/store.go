package credentials

import (
	"sync"
	"time"

	"github.com/sawpanic/skinmarket/internal/model"
)

// Status classifies the outcome of a validation check (spec §4.2).
type Status string

const (
	StatusValid            Status = "valid"
	StatusTransientFailure Status = "transient_failure"
	StatusInvalid          Status = "invalid"
)

// Result is the outcome of a Validate call.
type Result struct {
	Status Status
	Reason string
}

// Checker performs the actual network/credential check for a platform. A
// Marketplace Client satisfies this by issuing a cheap authenticated
// request and classifying the response.
type Checker interface {
	Check(platform model.Platform, bag Bag) Result
}

type cacheEntry struct {
	result  Result
	validAt time.Time
}

// Store holds credential bags per platform and caches validation results
// for TTL, so every Marketplace Client call doesn't re-validate. Per spec
// §4.2, a transient failure is never cached as invalid — it always forces
// a re-check next time.
type Store struct {
	mu      sync.RWMutex
	source  Source
	checker Checker
	ttl     time.Duration
	bags    map[model.Platform]Bag
	cache   map[model.Platform]cacheEntry
	now     func() time.Time
}

// DefaultTTL is the spec's default validation cache lifetime.
const DefaultTTL = 5 * time.Minute

// NewStore creates a Store. If ttl is zero, DefaultTTL is used.
func NewStore(source Source, checker Checker, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		source:  source,
		checker: checker,
		ttl:     ttl,
		bags:    make(map[model.Platform]Bag),
		cache:   make(map[model.Platform]cacheEntry),
		now:     time.Now,
	}
}

// Load reads the credential bag for platform from the configured Source
// and stores it for subsequent Validate/Bag calls.
func (s *Store) Load(platform model.Platform) error {
	bag, err := s.source.Load(platform)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bags[platform] = bag
	s.mu.Unlock()
	return nil
}

// Bag returns the currently loaded credential bag for platform.
func (s *Store) Bag(platform model.Platform) Bag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bags[platform]
}

// Validate returns the platform's cached validity if it is within TTL and
// was not a transient failure; otherwise it performs a fresh check. force
// always bypasses the cache.
func (s *Store) Validate(platform model.Platform, force bool) Result {
	if !force {
		if cached, ok := s.cachedResult(platform); ok {
			return cached
		}
	}

	s.mu.RLock()
	bag := s.bags[platform]
	s.mu.RUnlock()

	result := s.checker.Check(platform, bag)

	if result.Status != StatusTransientFailure {
		s.mu.Lock()
		s.cache[platform] = cacheEntry{result: result, validAt: s.now()}
		s.mu.Unlock()
	}
	return result
}

func (s *Store) cachedResult(platform model.Platform) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[platform]
	if !ok {
		return Result{}, false
	}
	if s.now().Sub(entry.validAt) > s.ttl {
		return Result{}, false
	}
	return entry.result, true
}

// Invalidate clears any cached validation result for platform, forcing
// the next Validate call to re-check regardless of force.
func (s *Store) Invalidate(platform model.Platform) {
	s.mu.Lock()
	delete(s.cache, platform)
	s.mu.Unlock()
}
