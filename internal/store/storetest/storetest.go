// Package storetest holds the behaviour every store backend must share.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/store"
)

// Run exercises s. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("append_then_list", func(t *testing.T) { testAppendThenList(t, newStore(t)) })
	t.Run("append_validation", func(t *testing.T) { testAppendValidation(t, newStore(t)) })
	t.Run("list_symmetric", func(t *testing.T) { testListSymmetric(t, newStore(t)) })
	t.Run("unread_lifecycle", func(t *testing.T) { testUnreadLifecycle(t, newStore(t)) })
	t.Run("mark_read_idempotent", func(t *testing.T) { testMarkReadIdempotent(t, newStore(t)) })
	t.Run("compact_ids", func(t *testing.T) { testCompactIDs(t, newStore(t)) })
	t.Run("unicode_content", func(t *testing.T) { testUnicodeContent(t, newStore(t)) })
	t.Run("concurrent_sends", func(t *testing.T) { testConcurrentSends(t, newStore(t)) })
	t.Run("counterparts", func(t *testing.T) { testCounterparts(t, newStore(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
}

func testAppendThenList(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()

	msg, err := s.Append(ctx, a, b, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
	assert.False(t, msg.Read)

	got, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].ID)
	assert.Equal(t, msg.Content, got[0].Content)
	assert.True(t, msg.Timestamp.Equal(got[0].Timestamp))

	empty, err := s.ListBetween(ctx, a, uuid.NewString())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func testAppendValidation(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()

	tests := []struct {
		name     string
		from, to string
		content  string
		wantMsg  string
	}{
		{"missing_from", "", b, "hi", "Missing fields"},
		{"missing_to", a, "", "hi", "Missing fields"},
		{"blank_content", a, b, "  \n ", "Missing fields"},
		{"too_long", a, b, strings.Repeat("x", model.DefaultMaxContentLength+1), "Message content is too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Append(ctx, tt.from, tt.to, tt.content)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Equal(t, tt.wantMsg, apperr.Public(err))
		})
	}

	got, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testListSymmetric(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()

	for i := range 3 {
		_, err := s.Append(ctx, a, b, fmt.Sprintf("a%d", i))
		require.NoError(t, err)
		_, err = s.Append(ctx, b, a, fmt.Sprintf("b%d", i))
		require.NoError(t, err)
	}

	ab, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	ba, err := s.ListBetween(ctx, b, a)
	require.NoError(t, err)

	assert.Len(t, ab, 6)
	assert.Equal(t, ab, ba)
	assert.Equal(t, []string{"a0", "b0", "a1", "b1", "a2", "b2"},
		lo.Map(ab, func(m model.Message, _ int) string { return m.Content }))
	assertOrdered(t, ab)
}

func testUnreadLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()

	counts, err := s.UnreadCountsByRecipient(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, counts)

	_, err = s.Append(ctx, a, b, "hi")
	require.NoError(t, err)

	counts, err = s.UnreadCountsByRecipient(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a: 1}, counts)

	// the sender has nothing unread
	counts, err = s.UnreadCountsByRecipient(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, counts)

	n, err := s.MarkRead(ctx, b, a)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	counts, err = s.UnreadCountsByRecipient(ctx, b)
	require.NoError(t, err)
	assert.NotContains(t, counts, a)
	for _, c := range counts {
		assert.Positive(t, c)
	}

	got, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Read)
}

func testMarkReadIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()

	for range 2 {
		_, err := s.Append(ctx, a, b, "from a")
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, c, b, "from c")
	require.NoError(t, err)

	n, err := s.MarkRead(ctx, b, a)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	before, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)

	n, err = s.MarkRead(ctx, b, a)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	after, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// other senders are untouched
	counts, err := s.UnreadCountsByRecipient(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{c: 1}, counts)
}

func testCompactIDs(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	compactA := strings.ReplaceAll(a.String(), "-", "")

	msg, err := s.Append(ctx, compactA, b.String(), "compact sender")
	require.NoError(t, err)
	assert.Equal(t, a.String(), msg.From)

	got, err := s.ListBetween(ctx, a.String(), b.String())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].ID)

	counts, err := s.UnreadCountsByRecipient(ctx, strings.ToUpper(b.String()))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a.String(): 1}, counts)
}

func testUnicodeContent(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()
	content := "héllo 👋🏽 こんにちは <b>bold</b>"

	_, err := s.Append(ctx, a, b, content)
	require.NoError(t, err)

	got, err := s.ListBetween(ctx, b, a)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, content, got[0].Content)
}

func testConcurrentSends(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()
	const perSide = 20

	var wg sync.WaitGroup
	errs := make(chan error, 2*perSide)
	for i := range perSide {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, a, b, fmt.Sprintf("a->b %d", i))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, b, a, fmt.Sprintf("b->a %d", i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	assert.Len(t, got, 2*perSide)
	assert.Len(t, lo.UniqBy(got, func(m model.Message) string { return m.ID }), 2*perSide)
	assertOrdered(t, got)
}

func testCounterparts(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()

	none, err := s.Counterparts(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, none)

	for _, step := range [][2]string{{a, b}, {b, a}, {c, a}, {a, a}} {
		_, err := s.Append(ctx, step[0], step[1], "hi")
		require.NoError(t, err)
	}

	peers, err := s.Counterparts(ctx, a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{b, c}, peers)
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	created, err := s.CreateUser(ctx, model.User{
		Profile: model.Profile{
			Username:      "ada",
			Email:         "Ada@Example.com",
			SkillsOffered: model.Skills{"Go", "Chess"},
		},
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.True(t, created.IsActive)
	assert.Equal(t, model.VisibilityPublic, created.ProfileVisibility)

	byID, err := s.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", byID.Username)
	assert.Equal(t, model.Skills{"Go", "Chess"}, byID.SkillsOffered)
	assert.Equal(t, "hash", byID.PasswordHash)

	byEmail, err := s.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	_, err = s.CreateUser(ctx, model.User{
		Profile:      model.Profile{Username: "ADA", Email: "other@example.com"},
		PasswordHash: "hash",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.GetUserByID(ctx, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	grace, err := s.CreateUser(ctx, model.User{
		Profile:      model.Profile{Username: "grace", Email: "grace@example.com"},
		PasswordHash: "hash",
	})
	require.NoError(t, err)

	listed, err := s.ListUsersByIDs(ctx, []uuid.UUID{grace.ID, uuid.New(), created.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"ada", "grace"}, lo.Map(listed, func(u model.User, _ int) string { return u.Username }))

	active, err := s.ListActiveUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func assertOrdered(t *testing.T, msgs []model.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		prev, cur := msgs[i-1], msgs[i]
		ok := prev.Timestamp.Before(cur.Timestamp) ||
			(prev.Timestamp.Equal(cur.Timestamp) && prev.ID < cur.ID)
		assert.Truef(t, ok, "message %d (%s) is out of order", i, cur.ID)
	}
}
