package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/skillxchange/internal/auth"
	"github.com/johndosdos/skillxchange/internal/contact"
	"github.com/johndosdos/skillxchange/internal/handler"
	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/relay"
	"github.com/johndosdos/skillxchange/internal/store/embedded"
)

const (
	eventually = 2 * time.Second
	tick       = 10 * time.Millisecond
)

var testTokens = auth.Issuer{Secret: "test-secret", Name: "test", TTL: time.Hour}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := embedded.Open("", log, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(st, relay.Options{})
	go hub.Run(ctx)

	srv := httptest.NewServer(handler.NewRouter(handler.Deps{
		Messages: st,
		Users:    st,
		Contacts: contact.NewDiscovery(st, st, log),
		Hub:      hub,
		Tokens:   testTokens,
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = st.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, self string, opts Options) *Session {
	t.Helper()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Dial(context.Background(), srv.URL, self, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// waitJoined blocks until every session has seen its own online status,
// which the hub only sends once the join went through.
func waitJoined(t *testing.T, sessions ...*Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range sessions {
			if !s.IsOnline(s.Self()) {
				return false
			}
		}
		return true
	}, eventually, tick)
}

func contents(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestSendAndReconcile(t *testing.T) {
	srv := startServer(t)
	a, b := uuid.NewString(), uuid.NewString()
	sa, sb := dial(t, srv, a, Options{}), dial(t, srv, b, Options{})
	ctx := context.Background()

	waitJoined(t, sa, sb)

	require.NoError(t, sa.Open(ctx, b))
	assert.Equal(t, Ready, sa.State(b))
	assert.Equal(t, Idle, sb.State(a))

	entry, err := sa.Send(ctx, b, "hello 👋")
	require.NoError(t, err)
	assert.Equal(t, Pending, entry.State)

	confirmed := func(s *Session, peer string) bool {
		entries := s.Entries(peer)
		return len(entries) == 1 && entries[0].State == Confirmed
	}
	require.Eventually(t, func() bool { return confirmed(sa, b) && confirmed(sb, a) }, eventually, tick)

	ea, eb := sa.Entries(b)[0], sb.Entries(a)[0]
	assert.Equal(t, ea.Message.ID, eb.Message.ID)
	assert.NotEqual(t, entry.TempID, ea.Message.ID)
	assert.Equal(t, "hello 👋", eb.Message.Content)

	counts, err := sb.API().UnreadCounts(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a: 1}, counts)

	require.NoError(t, sb.Open(ctx, a))
	assert.Equal(t, []string{"hello 👋"}, contents(sb.Messages(a)))

	counts, err = sb.API().UnreadCounts(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestSendValidationFailure(t *testing.T) {
	srv := startServer(t)
	a, b := uuid.NewString(), uuid.NewString()
	sa := dial(t, srv, a, Options{})

	_, err := sa.Send(context.Background(), b, "   ")
	require.NoError(t, err)

	// the relay rejects it and the optimistic entry goes away
	require.Eventually(t, func() bool { return len(sa.Entries(b)) == 0 }, eventually, tick)
}

func TestTyping(t *testing.T) {
	srv := startServer(t)
	a, b := uuid.NewString(), uuid.NewString()
	sa, sb := dial(t, srv, a, Options{}), dial(t, srv, b, Options{})
	ctx := context.Background()

	waitJoined(t, sa, sb)

	require.NoError(t, sa.Typing(ctx, b, true))
	require.Eventually(t, func() bool { return sb.IsTyping(a) }, eventually, tick)

	require.NoError(t, sa.Typing(ctx, b, false))
	require.Eventually(t, func() bool { return !sb.IsTyping(a) }, eventually, tick)
	assert.False(t, sa.IsTyping(b))
}

func TestConcurrentSends(t *testing.T) {
	srv := startServer(t)
	a, b := uuid.NewString(), uuid.NewString()
	sa, sb := dial(t, srv, a, Options{}), dial(t, srv, b, Options{})
	ctx := context.Background()
	waitJoined(t, sa, sb)

	const n = 10
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := sa.Send(ctx, b, "a"+string(rune('0'+i)))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := sb.Send(ctx, a, "b"+string(rune('0'+i)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	allConfirmed := func(s *Session, peer string) bool {
		entries := s.Entries(peer)
		if len(entries) != 2*n {
			return false
		}
		for _, e := range entries {
			if e.State != Confirmed {
				return false
			}
		}
		return true
	}
	require.Eventually(t, func() bool { return allConfirmed(sa, b) && allConfirmed(sb, a) }, eventually, tick)

	history, err := sa.API().History(ctx, a, b)
	require.NoError(t, err)
	assert.Len(t, history, 2*n)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp))
	}
}

func TestDialWithToken(t *testing.T) {
	srv := startServer(t)
	a := uuid.New()
	token, err := testTokens.MakeJWT(a)
	require.NoError(t, err)

	s := dial(t, srv, a.String(), Options{Token: token})
	require.Eventually(t, func() bool { return s.IsOnline(a.String()) }, eventually, tick)

	_, err = Dial(context.Background(), srv.URL, a.String(), Options{Token: "bad"})
	assert.Error(t, err)
}

func TestPollUnread(t *testing.T) {
	srv := startServer(t)
	a, b := uuid.NewString(), uuid.NewString()
	sb := dial(t, srv, b, Options{})
	waitJoined(t, sb)

	api := NewAPI(srv.URL, http.DefaultClient)
	_, err := api.Send(context.Background(), a, b, "knock knock")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan map[string]int, 4)
	go sb.PollUnread(ctx, 20*time.Millisecond, func(c map[string]int) { changes <- c })

	select {
	case got := <-changes:
		assert.Equal(t, map[string]int{a: 1}, got)
	case <-time.After(eventually):
		t.Fatal("no unread counts")
	}
	assert.Equal(t, map[string]int{a: 1}, sb.Unread())

	// the REST send was pushed to the open connection too
	require.Eventually(t, func() bool { return len(sb.Messages(a)) == 1 }, eventually, tick)
}

func TestRegisterLoginAndContacts(t *testing.T) {
	srv := startServer(t)
	api := NewAPI(srv.URL, nil)
	ctx := context.Background()

	ada, err := api.Register(ctx, model.RegisterRequest{
		Username: "ada", Email: "ada@example.com", Password: "secret1",
		SkillsOffered: model.Skills{"Go"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ada.Token)

	bob, err := api.Register(ctx, model.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "secret1"})
	require.NoError(t, err)

	login, err := api.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, ada.User.ID, login.User.ID)

	_, err = api.Send(ctx, bob.User.ID.String(), ada.User.ID.String(), "hi")
	require.NoError(t, err)

	contacts, err := api.Contacts(ctx, ada.User.ID.String())
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "bob", contacts[0].Username)
}

func TestAPIError(t *testing.T) {
	srv := startServer(t)
	api := NewAPI(srv.URL, nil)

	_, err := api.UnreadCounts(context.Background(), "not-a-uuid")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Invalid userId", apiErr.Message)

	_, err = api.Send(context.Background(), "", "x", "hi")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Missing fields", apiErr.Message)
}
