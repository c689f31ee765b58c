package usecase

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okq550/muslim-compnion-sub002/internal/core/domain"
	"github.com/okq550/muslim-compnion-sub002/internal/repository"
)

// fakeClock is a manually advanced clock shared between the store and the
// services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeEntry struct {
	value     string
	expiresAt time.Time
}

// fakeStore is an in-memory counter store with TTL semantics matching the
// redis implementation. Setting failing simulates a backend outage.
type fakeStore struct {
	mu      sync.Mutex
	clock   *fakeClock
	entries map[string]fakeEntry
	failing bool
}

func newFakeStore(clock *fakeClock) *fakeStore {
	return &fakeStore{clock: clock, entries: make(map[string]fakeEntry)}
}

func (s *fakeStore) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *fakeStore) Increment(ctx context.Context, key string, ttlIfNew time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, fmt.Errorf("%w: simulated outage", repository.ErrStoreUnavailable)
	}
	s.purge(key)

	entry, ok := s.entries[key]
	if !ok {
		entry = fakeEntry{value: "1"}
		if ttlIfNew > 0 {
			entry.expiresAt = s.clock.Now().Add(ttlIfNew)
		}
		s.entries[key] = entry
		return 1, nil
	}

	n, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value at %s is not an integer", key)
	}
	entry.value = strconv.FormatInt(n+1, 10)
	s.entries[key] = entry
	return n + 1, nil
}

func (s *fakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return "", false, fmt.Errorf("%w: simulated outage", repository.ErrStoreUnavailable)
	}
	s.purge(key)

	entry, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *fakeStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return false, fmt.Errorf("%w: simulated outage", repository.ErrStoreUnavailable)
	}
	s.purge(key)

	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	entry := fakeEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}
	s.entries[key] = entry
	return true, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return fmt.Errorf("%w: simulated outage", repository.ErrStoreUnavailable)
	}
	delete(s.entries, key)
	return nil
}

func (s *fakeStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, fmt.Errorf("%w: simulated outage", repository.ErrStoreUnavailable)
	}
	s.purge(key)

	entry, ok := s.entries[key]
	if !ok || entry.expiresAt.IsZero() {
		return 0, nil
	}
	remaining := entry.expiresAt.Sub(s.clock.Now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// purge drops the key if its TTL elapsed. Callers hold the mutex.
func (s *fakeStore) purge(key string) {
	entry, ok := s.entries[key]
	if !ok || entry.expiresAt.IsZero() {
		return
	}
	if !s.clock.Now().Before(entry.expiresAt) {
		delete(s.entries, key)
	}
}

// fakeVerifier checks secrets against a fixed identity/secret map.
type fakeVerifier struct {
	mu      sync.Mutex
	secrets map[string]string
	err     error
	calls   int
}

func newFakeVerifier(secrets map[string]string) *fakeVerifier {
	return &fakeVerifier{secrets: secrets}
}

func (v *fakeVerifier) Verify(ctx context.Context, identity, secret string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.err != nil {
		return false, v.err
	}
	want, ok := v.secrets[identity]
	return ok && want == secret, nil
}

func (v *fakeVerifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// capturingPublisher records every published security event.
type capturingPublisher struct {
	mu      sync.Mutex
	locked  []domain.AccountLockedEvent
	reused  []domain.TokenReuseDetectedEvent
	revoked []domain.SessionRevokedEvent
}

func (p *capturingPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = append(p.locked, event)
	return nil
}

func (p *capturingPublisher) PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reused = append(p.reused, event)
	return nil
}

func (p *capturingPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, event)
	return nil
}

// countingMetrics tallies every counter bump by label.
type countingMetrics struct {
	mu          sync.Mutex
	logins      map[string]int
	lockouts    int
	rateLimited map[string]int
	tokenReuse  int
	degraded    map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		logins:      make(map[string]int),
		rateLimited: make(map[string]int),
		degraded:    make(map[string]int),
	}
}

func (m *countingMetrics) IncLogin(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[outcome]++
}

func (m *countingMetrics) IncLockout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockouts++
}

func (m *countingMetrics) IncRateLimited(class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited[class]++
}

func (m *countingMetrics) IncTokenReuse() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenReuse++
}

func (m *countingMetrics) IncStoreDegraded(component string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded[component]++
}
