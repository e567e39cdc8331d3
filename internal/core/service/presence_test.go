package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wyydra/yacall/internal/adapter/driven/presence/memory"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/metrics"
)

func TestPresenceMarkOnlineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := NewPresenceService(store, PresenceConfig{})

	require.NoError(t, p.MarkOnline(ctx, "u1"))
	require.NoError(t, p.MarkOnline(ctx, "u1"))
	require.NoError(t, p.MarkOnline(ctx, "u2"))

	users, err := store.List(ctx, DefaultOnlineSet)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"u1", "u2"}, users)
}

func TestPresenceOnlineUsersExcludesCaller(t *testing.T) {
	ctx := context.Background()
	p := NewPresenceService(memory.NewStore(), PresenceConfig{SetName: "lobby"})
	assert.Equal(t, "lobby", p.SetName())

	for _, u := range []domain.UserID{"u1", "u2", "u3"} {
		require.NoError(t, p.MarkOnline(ctx, u))
	}

	users, err := p.OnlineUsers(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"u1", "u3"}, users)

	// a caller outside the set sees everyone
	users, err = p.OnlineUsers(ctx, "u9")
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestPresenceMarkOfflineAbsentUser(t *testing.T) {
	ctx := context.Background()
	p := NewPresenceService(memory.NewStore(), PresenceConfig{})

	require.NoError(t, p.MarkOffline(ctx, "ghost"))
	require.NoError(t, p.MarkOnline(ctx, "u1"))
	require.NoError(t, p.MarkOffline(ctx, "u1"))

	users, err := p.OnlineUsers(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestPresenceStoreFailureIsRetriedThenMarked(t *testing.T) {
	store := &failingStore{}
	p := NewPresenceService(store, PresenceConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
	})

	err := p.MarkOnline(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 3, store.attempts())

	_, err = p.OnlineUsers(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestPresenceCanceledContextStopsRetrying(t *testing.T) {
	store := &failingStore{}
	p := NewPresenceService(store, PresenceConfig{
		MaxRetries:      10,
		InitialInterval: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.MarkOffline(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.LessOrEqual(t, store.attempts(), 1)
}

func latencySum(t *testing.T, op string) float64 {
	t.Helper()
	m, ok := metrics.OnlineSetLatency.WithLabelValues(op).(prometheus.Metric)
	require.True(t, ok)
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	return out.GetHistogram().GetSampleSum()
}

func TestPresenceRecordsSubMillisecondLatency(t *testing.T) {
	p := NewPresenceService(&slowStore{Store: memory.NewStore(), delay: 200 * time.Microsecond}, PresenceConfig{})

	before := latencySum(t, "list")
	_, err := p.OnlineUsers(context.Background(), "u1")
	require.NoError(t, err)

	elapsed := latencySum(t, "list") - before
	assert.Greater(t, elapsed, 0.0)
	assert.Less(t, elapsed, 1000.0)
}
