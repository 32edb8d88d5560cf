package upload

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/loglens/internal/analysis"
	"github.com/JonMunkholm/loglens/internal/core"
	"github.com/JonMunkholm/loglens/internal/ingest"
	"github.com/JonMunkholm/loglens/internal/schema"
	"github.com/JonMunkholm/loglens/internal/store"
)

func newSessions(t *testing.T, ttl time.Duration) (*Sessions, *time.Time) {
	t.Helper()
	s, err := NewSessions(Deps{
		Decoder:    ingest.NewDecoder(0),
		Classifier: schema.MustNewClassifier(),
		Analyzer:   analysis.NewFallbackAnalyzer(rand.New(rand.NewPCG(1, 1))),
		Store:      store.NewMemory(),
	}, ttl)
	require.NoError(t, err)

	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, &clock
}

func TestSessions_CreateGetRemove(t *testing.T) {
	s, _ := newSessions(t, time.Minute)

	id, ctrl, err := s.Create()
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Same(t, ctrl, got)

	require.NoError(t, s.Remove(id))
	assert.Equal(t, 0, s.Len())

	_, err = s.Get(id)
	assert.True(t, errors.Is(err, core.ErrValidation))
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, "VAL005", core.MapError(err).Code)

	assert.ErrorIs(t, s.Remove(uuid.New()), ErrSessionNotFound)
}

func TestSessions_EachHasOwnController(t *testing.T) {
	s, _ := newSessions(t, time.Minute)

	_, a, err := s.Create()
	require.NoError(t, err)
	_, b, err := s.Create()
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	_, err = a.SubmitFile(context.Background(), csvUpload("fw.csv", firewallCSV), "")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, a.State())
	assert.Equal(t, StateIdle, b.State())
}

func TestSessions_SweepExpired(t *testing.T) {
	s, clock := newSessions(t, 10*time.Minute)

	stale, _, err := s.Create()
	require.NoError(t, err)

	*clock = clock.Add(8 * time.Minute)
	fresh, _, err := s.Create()
	require.NoError(t, err)

	*clock = clock.Add(5 * time.Minute)
	assert.Equal(t, 1, s.Sweep())

	_, err = s.Get(stale)
	assert.Error(t, err)
	_, err = s.Get(fresh)
	assert.NoError(t, err)
}

func TestSessions_GetRefreshesTTL(t *testing.T) {
	s, clock := newSessions(t, 10*time.Minute)

	id, _, err := s.Create()
	require.NoError(t, err)

	*clock = clock.Add(9 * time.Minute)
	_, err = s.Get(id)
	require.NoError(t, err)

	*clock = clock.Add(9 * time.Minute)
	assert.Equal(t, 0, s.Sweep())
}

func TestSessions_RunStopsOnCancel(t *testing.T) {
	s, _ := newSessions(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
