package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_StoreLogin_Idempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.StoreLogin(ctx, "U1", "C1"))
	require.NoError(t, m.StoreLogin(ctx, "U1", "C1"))

	ids, err := m.FetchClientIDs(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, []string{"C1"}, ids)
}

func TestMemory_FetchClientIDs_MultipleClientsNoDuplicates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.StoreLogin(ctx, "U1", "C1"))
	require.NoError(t, m.StoreLogin(ctx, "U1", "C2"))
	require.NoError(t, m.StoreLogin(ctx, "U2", "C1"))

	ids, err := m.FetchClientIDs(ctx, "U1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"C1", "C2"}, ids)
}

func TestMemory_FetchClientIDs_UnknownUser(t *testing.T) {
	m := NewMemory()
	ids, err := m.FetchClientIDs(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
