package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubCleaner struct {
	olderThan time.Duration
}

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	s.olderThan = olderThan
	return nil
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body QueueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, QueueDefault, body.Queue)
	require.Zero(t, body.Pending)
}

func TestRunGuardCleanupHandler(t *testing.T) {
	cleaner := &stubCleaner{}
	handler := NewRunGuardCleanupHandler(cleaner, nil)

	task, err := NewRunGuardCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, 90*24*time.Hour, cleaner.olderThan)

	task, err = NewRunGuardCleanupTask(7)
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, 7*24*time.Hour, cleaner.olderThan)

	require.ErrorIs(t, handler(context.Background(), asynq.NewTask(TaskRunGuardCleanup, []byte("x"))), asynq.SkipRetry)
}
