package attemptrepo_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/jrsteele09/hbr-risk/smart/attemptrepo"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newTestAttempt() *attemptrepo.Attempt {
	return &attemptrepo.Attempt{
		CodeVerifier:          "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
		Issuer:                "https://ehr.example.org/fhir",
		AuthorizationEndpoint: "https://ehr.example.org/auth/authorize",
		TokenEndpoint:         "https://ehr.example.org/auth/token",
		Scope:                 "launch openid",
	}
}

func TestCreateAndConsume(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	repo := attemptrepo.NewInMemoryRepo(5*time.Minute, attemptrepo.WithNowTime(clock.Now))

	t.Run("consume returns the stored attempt once", func(t *testing.T) {
		state, err := repo.Create(newTestAttempt())
		require.NoError(t, err)
		require.NotEmpty(t, state)

		attempt, err := repo.Consume(state)
		require.NoError(t, err)
		require.Equal(t, state, attempt.State)
		require.Equal(t, "https://ehr.example.org/auth/token", attempt.TokenEndpoint)
		require.Equal(t, clock.Now().Add(5*time.Minute), attempt.ExpiresAt)

		_, err = repo.Consume(state)
		require.ErrorIs(t, err, apperrors.ErrExpiredOrUnknownState)
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := repo.Consume("never-issued")
		require.ErrorIs(t, err, apperrors.ErrExpiredOrUnknownState)

		_, err = repo.Consume("")
		require.ErrorIs(t, err, apperrors.ErrExpiredOrUnknownState)
	})

	t.Run("expired attempt is rejected and removed", func(t *testing.T) {
		state, err := repo.Create(newTestAttempt())
		require.NoError(t, err)

		clock.Advance(5 * time.Minute)

		_, err = repo.Consume(state)
		require.ErrorIs(t, err, apperrors.ErrExpiredOrUnknownState)
		require.Equal(t, 0, repo.Len())
	})

	t.Run("stored attempt is a copy", func(t *testing.T) {
		a := newTestAttempt()
		state, err := repo.Create(a)
		require.NoError(t, err)
		a.TokenEndpoint = "https://attacker.example.org/token"

		got, err := repo.Consume(state)
		require.NoError(t, err)
		require.Equal(t, "https://ehr.example.org/auth/token", got.TokenEndpoint)
	})
}

func TestTTLIsCapped(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	repo := attemptrepo.NewInMemoryRepo(time.Hour, attemptrepo.WithNowTime(clock.Now))

	state, err := repo.Create(newTestAttempt())
	require.NoError(t, err)

	clock.Advance(attemptrepo.MaxTTL)
	_, err = repo.Consume(state)
	require.ErrorIs(t, err, apperrors.ErrExpiredOrUnknownState)
}

func TestConcurrentConsumeSucceedsOnce(t *testing.T) {
	repo := attemptrepo.NewInMemoryRepo(time.Minute)
	state, err := repo.Create(newTestAttempt())
	require.NoError(t, err)

	var successes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Consume(state); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), successes.Load())
}

func TestStateCollisionIsRetried(t *testing.T) {
	values := []string{"same", "same", "different"}
	i := 0
	gen := func() (string, error) {
		v := values[i]
		i++
		return v, nil
	}
	repo := attemptrepo.NewInMemoryRepo(time.Minute, attemptrepo.WithStateGenerator(gen))

	first, err := repo.Create(newTestAttempt())
	require.NoError(t, err)
	second, err := repo.Create(newTestAttempt())
	require.NoError(t, err)

	require.Equal(t, "same", first)
	require.Equal(t, "different", second)
}

func TestDeleteExpiredAndRun(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	repo := attemptrepo.NewInMemoryRepo(time.Minute, attemptrepo.WithNowTime(clock.Now))

	_, err := repo.Create(newTestAttempt())
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = repo.Create(newTestAttempt())
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	require.Equal(t, 1, repo.DeleteExpired(clock.Now()))
	require.Equal(t, 1, repo.Len())

	clock.Advance(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		repo.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return repo.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestDelete(t *testing.T) {
	repo := attemptrepo.NewInMemoryRepo(time.Minute)
	state, err := repo.Create(newTestAttempt())
	require.NoError(t, err)

	require.NoError(t, repo.Delete(state))
	require.Error(t, repo.Delete(""))

	_, err = repo.Consume(state)
	require.ErrorIs(t, err, apperrors.ErrExpiredOrUnknownState)
}
