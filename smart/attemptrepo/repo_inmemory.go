package attemptrepo

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	stateBytes = 32
	// MaxTTL bounds how long an attempt may wait for its callback.
	MaxTTL = 10 * time.Minute
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
	ttl      time.Duration
	nowTime  func() time.Time
	newState func() (string, error)
}

type Option func(*InMemoryRepo)

// WithNowTime overrides the clock.
func WithNowTime(now func() time.Time) Option {
	return func(r *InMemoryRepo) {
		r.nowTime = now
	}
}

// WithStateGenerator overrides how state values are produced.
func WithStateGenerator(gen func() (string, error)) Option {
	return func(r *InMemoryRepo) {
		r.newState = gen
	}
}

// NewInMemoryRepo creates a new in-memory attempt repository. ttl is capped at MaxTTL.
func NewInMemoryRepo(ttl time.Duration, opts ...Option) *InMemoryRepo {
	if ttl <= 0 || ttl > MaxTTL {
		ttl = MaxTTL
	}
	r := &InMemoryRepo{
		attempts: make(map[string]*Attempt),
		ttl:      ttl,
		nowTime:  time.Now,
		newState: randomState,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a copy of the attempt under a fresh state value
func (r *InMemoryRepo) Create(attempt *Attempt) (string, error) {
	if attempt == nil {
		return "", errors.New("attempt cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.uniqueStateLocked()
	if err != nil {
		return "", err
	}

	now := r.nowTime()
	stored := *attempt
	stored.State = state
	stored.CreatedAt = now
	stored.ExpiresAt = now.Add(r.ttl)
	r.attempts[state] = &stored

	return state, nil
}

// Consume checks and removes the attempt under one lock so concurrent callbacks cannot both succeed
func (r *InMemoryRepo) Consume(state string) (*Attempt, error) {
	if state == "" {
		return nil, apperrors.ErrExpiredOrUnknownState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, exists := r.attempts[state]
	if !exists {
		return nil, apperrors.ErrExpiredOrUnknownState
	}
	delete(r.attempts, state)

	if attempt.Expired(r.nowTime()) {
		return nil, apperrors.ErrExpiredOrUnknownState
	}

	consumed := *attempt
	return &consumed, nil
}

// Delete removes an attempt
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.attempts, state)
	return nil
}

// DeleteExpired removes every attempt whose deadline has passed and returns how many were removed.
func (r *InMemoryRepo) DeleteExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for state, attempt := range r.attempts {
		if attempt.Expired(now) {
			delete(r.attempts, state)
			removed++
		}
	}
	return removed
}

// Len returns the number of pending attempts.
func (r *InMemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

// Run sweeps expired attempts every interval until ctx is cancelled.
func (r *InMemoryRepo) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.DeleteExpired(r.nowTime()); n > 0 {
				log.Debug().Int("removed", n).Msg("swept expired authorization attempts")
			}
		}
	}
}

func (r *InMemoryRepo) uniqueStateLocked() (string, error) {
	for i := 0; i < 3; i++ {
		state, err := r.newState()
		if err != nil {
			return "", fmt.Errorf("[attemptrepo Create] generating state: %w", err)
		}
		if _, taken := r.attempts[state]; !taken && state != "" {
			return state, nil
		}
	}
	return "", errors.New("[attemptrepo Create] could not generate a unique state")
}

func randomState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
