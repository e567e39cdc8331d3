package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wyydra/yacall/internal/core/domain"
)

func TestStoreAppendIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	added, err := s.AppendIfAbsent(ctx, "online", "u1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AppendIfAbsent(ctx, "online", "u1")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = s.AppendIfAbsent(ctx, "online", "u2")
	require.NoError(t, err)

	users, err := s.List(ctx, "online")
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"u1", "u2"}, users)
}

func TestStoreRemove(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, _ = s.AppendIfAbsent(ctx, "online", "u1")
	_, _ = s.AppendIfAbsent(ctx, "online", "u2")

	require.NoError(t, s.Remove(ctx, "online", "u1"))
	require.NoError(t, s.Remove(ctx, "online", "u1"))
	require.NoError(t, s.Remove(ctx, "other", "u1"))

	users, err := s.List(ctx, "online")
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"u2"}, users)
}

func TestStoreSetsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, _ = s.AppendIfAbsent(ctx, "a", "u1")

	users, err := s.List(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestStoreHonoursCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore().AppendIfAbsent(ctx, "online", "u1")
	assert.ErrorIs(t, err, context.Canceled)
}
