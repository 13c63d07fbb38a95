// File: cmd/history_test.go
package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/config"
	"github.com/xkilldash9x/autologin/internal/service"
	"github.com/xkilldash9x/autologin/internal/store"
)

type recordedQuery struct {
	service string
	limit   int
}

type historyFake struct {
	runs    []store.Run
	err     error
	queries []recordedQuery
	closed  bool
}

func fakeHistory(runs []store.Run, err error) *historyFake {
	return &historyFake{runs: runs, err: err}
}

func (h *historyFake) open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (runHistory, func(), error) {
	return h, func() { h.closed = true }, nil
}

func (h *historyFake) RecentRuns(ctx context.Context, service string, limit int) ([]store.Run, error) {
	h.queries = append(h.queries, recordedQuery{service, limit})
	return h.runs, h.err
}

func sampleRuns() []store.Run {
	start := time.Date(2024, 12, 23, 7, 30, 0, 0, time.UTC)
	return []store.Run{
		{
			ID:         uuid.New(),
			Service:    config.ServiceAtoZ,
			StartedAt:  start.Add(15 * time.Minute),
			FinishedAt: start.Add(15*time.Minute + 1500*time.Millisecond),
			Outcome:    store.OutcomeAlreadyAuthenticated,
		},
		{
			ID:         uuid.New(),
			Service:    config.ServiceProton,
			StartedAt:  start,
			FinishedAt: start.Add(12 * time.Second),
			Outcome:    store.OutcomeFailed,
			Error:      "proton: email and password are required",
		},
	}
}

func TestHistory_RendersRuns(t *testing.T) {
	env := newTestEnv(t, "")
	h := fakeHistory(sampleRuns(), nil)
	a := newTestApp(newFakeFactory())
	a.openHistory = h.open

	stdout, _, err := runWithEnv(t, env, a, "history")
	require.NoError(t, err)

	for _, want := range []string{"STARTED", "OUTCOME", "atoz", "already_authenticated", "1.5s", "proton", "failed", "12s", "email and password are required"} {
		assert.Contains(t, stdout, want)
	}
	require.Len(t, h.queries, 1)
	assert.Equal(t, recordedQuery{"", store.DefaultLimit}, h.queries[0])
	assert.True(t, h.closed)
}

func TestHistory_Filters(t *testing.T) {
	env := newTestEnv(t, "")
	h := fakeHistory(nil, nil)
	a := newTestApp(newFakeFactory())
	a.openHistory = h.open

	_, stderr, err := runWithEnv(t, env, a, "history", "--service", "proton", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, stderr, "No runs recorded.")
	assert.Equal(t, []recordedQuery{{"proton", 5}}, h.queries)
}

func TestHistory_UnknownService(t *testing.T) {
	env := newTestEnv(t, "")
	h := fakeHistory(nil, nil)
	a := newTestApp(newFakeFactory())
	a.openHistory = h.open

	_, _, err := runWithEnv(t, env, a, "history", "--service", "slack")
	require.ErrorIs(t, err, service.ErrUnknownService)
	assert.Empty(t, h.queries)
}

func TestHistory_QueryError(t *testing.T) {
	env := newTestEnv(t, "")
	h := fakeHistory(nil, errors.New("connection reset"))
	a := newTestApp(newFakeFactory())
	a.openHistory = h.open

	_, _, err := runWithEnv(t, env, a, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.True(t, h.closed)
}

func TestHistory_DisabledWithoutDatabase(t *testing.T) {
	env := newTestEnv(t, "")
	_, _, err := runWithEnv(t, env, newTestApp(newFakeFactory()), "history")
	require.ErrorIs(t, err, errHistoryDisabled)
}
