package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/skillxchange/internal/store"
	"github.com/johndosdos/skillxchange/internal/store/storetest"
	"github.com/johndosdos/skillxchange/internal/testutil"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New(testutil.DbInit(t), 0)
	})
}

func TestOpenOwnsPool(t *testing.T) {
	testutil.DbInit(t)
	ctx := context.Background()

	s, err := Open(ctx, os.Getenv("TEST_DB_URL"), 0)
	require.NoError(t, err)
	require.NoError(t, s.pool.Ping(ctx))

	require.NoError(t, s.Close())
	assert.Error(t, s.pool.Ping(ctx))
}

func TestNewLeavesPoolOpen(t *testing.T) {
	pool := testutil.DbInit(t)
	ctx := context.Background()

	require.NoError(t, New(pool, 0).Close())
	assert.NoError(t, pool.Ping(ctx))
}

func TestLegacyCompactRows(t *testing.T) {
	pool := testutil.DbInit(t)
	s := New(pool, 0)
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	compactA := strings.ReplaceAll(a.String(), "-", "")

	// rows written before ids were canonicalised
	_, err := pool.Exec(ctx,
		`INSERT INTO messages (id, from_ref, to_ref, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), compactA, b.String(), "legacy", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	fresh, err := s.Append(ctx, a.String(), b.String(), "fresh")
	require.NoError(t, err)

	got, err := s.ListBetween(ctx, b.String(), a.String())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "legacy", got[0].Content)
	assert.Equal(t, a.String(), got[0].From)
	assert.Equal(t, fresh.ID, got[1].ID)

	counts, err := s.UnreadCountsByRecipient(ctx, b.String())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a.String(): 2}, counts)

	n, err := s.MarkRead(ctx, b.String(), compactA)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	peers, err := s.Counterparts(ctx, b.String())
	require.NoError(t, err)
	assert.Equal(t, []string{a.String()}, peers)
}
