package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/mocks"
	"github.com/johndosdos/skillxchange/internal/model"
)

const waitFor = time.Second

func startHub(t *testing.T, opts Options) (*Hub, *mocks.MockMessages) {
	t.Helper()
	ctrl := gomock.NewController(t)
	msgs := mocks.NewMockMessages(ctrl)

	h := NewHub(msgs, opts)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h, msgs
}

// connect registers a client without a websocket behind it.
func connect(t *testing.T, h *Hub, userID string) *Client {
	t.Helper()
	c := h.NewClient(nil)
	require.True(t, h.Add(context.Background(), c, userID))
	return c
}

func emit(t *testing.T, h *Hub, c *Client, name string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	h.ClientMsg <- Inbound{Client: c, Event: RawEvent{Name: name, Data: raw}}
}

// next returns the next event called name, skipping others.
func next(t *testing.T, c *Client, name string) Event {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case ev := <-c.MessageCh:
			if ev.Name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", name)
			return Event{}
		}
	}
}

// quiet asserts that no event called name arrives within d.
func quiet(t *testing.T, c *Client, name string, d time.Duration) {
	t.Helper()
	timeout := time.After(d)
	for {
		select {
		case ev := <-c.MessageCh:
			assert.NotEqual(t, name, ev.Name, "unexpected %s: %+v", name, ev.Data)
		case <-timeout:
			return
		}
	}
}

func TestSendMessageConfirmed(t *testing.T) {
	h, msgs := startHub(t, Options{})
	a, b := uuid.NewString(), uuid.NewString()
	ca, cb := connect(t, h, a), connect(t, h, b)

	saved := model.Message{ID: "perm-1", From: a, To: b, Content: "hello", Timestamp: time.Now().UTC()}
	msgs.EXPECT().Append(gomock.Any(), a, b, "hello").Return(saved, nil)

	emit(t, h, ca, EventSendMessage, SendMessagePayload{ID: "tmp-1", From: a, To: b, Content: "<b>hello</b>"})

	for _, c := range []*Client{ca, cb} {
		ev := next(t, c, EventNewMessage)
		bc := ev.Data.(Broadcast)
		assert.Equal(t, "tmp-1", bc.TempID)
		assert.Equal(t, "tmp-1", bc.ID)
		assert.Equal(t, "hello", bc.Content)
		assert.False(t, bc.Read)

		ev = next(t, c, EventMessageConfirmed)
		conf := ev.Data.(Confirmation)
		assert.Equal(t, "tmp-1", conf.TempID)
		assert.Equal(t, saved, conf.ConfirmedMessage)
	}
}

func TestSendMessagePersistFailure(t *testing.T) {
	h, msgs := startHub(t, Options{})
	a, b := uuid.NewString(), uuid.NewString()
	ca, cb := connect(t, h, a), connect(t, h, b)

	msgs.EXPECT().
		Append(gomock.Any(), a, b, "hello").
		Return(model.Message{}, apperr.Persistence("Error sending message", errors.New("db down")))

	emit(t, h, ca, EventSendMessage, SendMessagePayload{ID: "tmp-1", From: a, To: b, Content: "hello"})

	// the recipient still sees the message
	ev := next(t, cb, EventNewMessage)
	assert.Equal(t, "hello", ev.Data.(Broadcast).Content)

	ev = next(t, ca, EventMessageError)
	assert.Equal(t, ErrorPayload{Error: "Error sending message", TempID: "tmp-1"}, ev.Data)

	quiet(t, ca, EventMessageError, 100*time.Millisecond)
	quiet(t, cb, EventMessageError, 100*time.Millisecond)
}

func TestSendMessageValidation(t *testing.T) {
	h, msgs := startHub(t, Options{MaxContent: 5})
	a, b := uuid.NewString(), uuid.NewString()
	ca, cb := connect(t, h, a), connect(t, h, b)
	msgs.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	tests := []struct {
		name    string
		payload SendMessagePayload
		want    string
	}{
		{"missing_to", SendMessagePayload{ID: "t1", From: a, Content: "hi"}, "Missing fields"},
		{"markup_only", SendMessagePayload{ID: "t2", From: a, To: b, Content: "<script></script>"}, "Missing fields"},
		{"too_long", SendMessagePayload{ID: "t3", From: a, To: b, Content: "123456"}, "Message content is too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emit(t, h, ca, EventSendMessage, tt.payload)
			ev := next(t, ca, EventMessageError)
			assert.Equal(t, ErrorPayload{Error: tt.want, TempID: tt.payload.ID}, ev.Data)
		})
	}

	quiet(t, cb, EventNewMessage, 100*time.Millisecond)
}

func TestSendMessageRequiresSender(t *testing.T) {
	h, msgs := startHub(t, Options{})
	a, b := uuid.NewString(), uuid.NewString()
	anon, ca, cb := connect(t, h, ""), connect(t, h, a), connect(t, h, b)
	msgs.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	emit(t, h, anon, EventSendMessage, SendMessagePayload{ID: "t1", From: a, To: b, Content: "hi"})
	assert.Equal(t, ErrorPayload{Error: "Join required", TempID: "t1"}, next(t, anon, EventMessageError).Data)

	emit(t, h, ca, EventSendMessage, SendMessagePayload{ID: "t2", From: b, To: a, Content: "hi"})
	assert.Equal(t, ErrorPayload{Error: "Sender does not match connection", TempID: "t2"}, next(t, ca, EventMessageError).Data)

	quiet(t, cb, EventNewMessage, 100*time.Millisecond)
}

func TestSendMessageAssignsTempID(t *testing.T) {
	h, msgs := startHub(t, Options{})
	a, b := uuid.NewString(), uuid.NewString()
	ca := connect(t, h, a)

	done := make(chan struct{})
	msgs.EXPECT().Append(gomock.Any(), a, b, "hi").DoAndReturn(
		func(context.Context, string, string, string) (model.Message, error) {
			close(done)
			return model.Message{ID: "perm", From: a, To: b, Content: "hi"}, nil
		})

	sent := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	emit(t, h, ca, EventSendMessage, SendMessagePayload{From: a, To: b, Content: "hi", Timestamp: &sent})

	bc := next(t, ca, EventNewMessage).Data.(Broadcast)
	assert.Regexp(t, `^tmp-`, bc.TempID)
	assert.True(t, sent.Equal(bc.Timestamp))
	<-done
}

func TestTypingReachesRecipientOnly(t *testing.T) {
	h, _ := startHub(t, Options{})
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()
	ca, cb, cc := connect(t, h, a), connect(t, h, b), connect(t, h, c)

	emit(t, h, ca, EventTyping, TypingPayload{From: a, To: b})
	ev := next(t, cb, EventUserTyping)
	assert.Equal(t, TypingNotice{From: a}, ev.Data)

	emit(t, h, ca, EventStopTyping, TypingPayload{From: a, To: b})
	next(t, cb, EventUserStoppedTyping)

	quiet(t, ca, EventUserTyping, 50*time.Millisecond)
	quiet(t, cc, EventUserTyping, 50*time.Millisecond)
}

func TestPresence(t *testing.T) {
	h, _ := startHub(t, Options{})
	a, b := uuid.NewString(), uuid.NewString()

	watcher := connect(t, h, a)
	assert.Equal(t, StatusPayload{UserID: a, Status: StatusOnline}, next(t, watcher, EventUserStatusChanged).Data)

	first := connect(t, h, b)
	assert.Equal(t, StatusPayload{UserID: b, Status: StatusOnline}, next(t, watcher, EventUserStatusChanged).Data)

	// a second device does not change b's status
	second := connect(t, h, b)
	quiet(t, watcher, EventUserStatusChanged, 50*time.Millisecond)
	assert.True(t, h.Registry().IsOnline(b))

	h.Unregister <- first
	quiet(t, watcher, EventUserStatusChanged, 50*time.Millisecond)

	h.Unregister <- second
	assert.Equal(t, StatusPayload{UserID: b, Status: StatusOffline}, next(t, watcher, EventUserStatusChanged).Data)
	assert.False(t, h.Registry().IsOnline(b))
	assert.Equal(t, []string{a}, h.Registry().Online())

	// the hub closes the outbound channel of a dropped client
	for range second.MessageCh {
	}
}

func TestJoinEvent(t *testing.T) {
	h, _ := startHub(t, Options{})
	a := uuid.New()
	c := connect(t, h, "")

	emit(t, h, c, EventJoin, map[string]string{"userId": a.String()})
	next(t, c, EventUserStatusChanged)
	assert.True(t, h.Registry().IsOnline(a.String()))

	emit(t, h, c, EventJoin, "")
	assert.Equal(t, ErrorPayload{Error: "Missing fields"}, next(t, c, EventMessageError).Data)
}

func TestAddAfterStop(t *testing.T) {
	h := NewHub(nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := connect(t, h, "")
	cancel()

	// the hub closes every outbound channel on the way out
	for range c.MessageCh {
	}
	assert.False(t, h.Add(context.Background(), h.NewClient(nil), ""))
}

func TestUnknownEvent(t *testing.T) {
	h, _ := startHub(t, Options{})
	c := connect(t, h, uuid.NewString())

	h.ClientMsg <- Inbound{Client: c, Event: RawEvent{}}
	assert.Equal(t, ErrorPayload{Error: "Invalid event"}, next(t, c, EventMessageError).Data)
}

func TestRateLimit(t *testing.T) {
	h, msgs := startHub(t, Options{MessageLimit: Limit{Requests: 1, Window: time.Hour}})
	a, b := uuid.NewString(), uuid.NewString()
	ca := connect(t, h, a)
	msgs.EXPECT().Append(gomock.Any(), a, b, "one").Return(model.Message{ID: "1", From: a, To: b}, nil)

	emit(t, h, ca, EventSendMessage, SendMessagePayload{ID: "t1", From: a, To: b, Content: "one"})
	next(t, ca, EventMessageConfirmed)

	emit(t, h, ca, EventSendMessage, SendMessagePayload{ID: "t2", From: a, To: b, Content: "two"})
	assert.Equal(t, ErrorPayload{Error: "rate limit exceeded", TempID: "t2"}, next(t, ca, EventMessageError).Data)
}

func TestNotify(t *testing.T) {
	h, _ := startHub(t, Options{})
	a, b := uuid.NewString(), uuid.NewString()
	ca, cb := connect(t, h, a), connect(t, h, b)

	msg := model.Message{ID: "perm", From: a, To: b, Content: "via rest"}
	h.Notify(context.Background(), msg)

	for _, c := range []*Client{ca, cb} {
		bc := next(t, c, EventNewMessage).Data.(Broadcast)
		assert.Equal(t, msg, bc.Message)
		assert.Empty(t, bc.TempID)
	}
}

func TestSlowClientDoesNotBlockHub(t *testing.T) {
	h, _ := startHub(t, Options{ClientBuffer: 1})
	a, b := uuid.NewString(), uuid.NewString()
	connect(t, h, a)
	cb := connect(t, h, b)

	for range 10 {
		h.Notify(context.Background(), model.Message{ID: "x", From: a, To: b, Content: "spam"})
	}

	// the hub still answers
	c := connect(t, h, uuid.NewString())
	assert.NotNil(t, c)
	assert.LessOrEqual(t, len(cb.MessageCh), 1)
}

func TestCleanContent(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"<b>bold</b> & <i>it</i>", "bold & it"},
		{`<img src=x onerror="alert(1)">hi`, "hi"},
		{"emoji 👋 \"quoted\"", "emoji 👋 \"quoted\""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanContent(tt.in))
	}
}

func TestShutdownDrainsWrites(t *testing.T) {
	ctrl := gomock.NewController(t)
	msgs := mocks.NewMockMessages(ctrl)
	h := NewHub(msgs, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	a, b := uuid.NewString(), uuid.NewString()
	ca := connect(t, h, a)

	started, release := make(chan struct{}), make(chan struct{})
	var writeErr error
	msgs.EXPECT().
		Append(gomock.Any(), a, b, "last words").
		DoAndReturn(func(ctx context.Context, from, to, content string) (model.Message, error) {
			close(started)
			<-release
			writeErr = ctx.Err()
			return model.Message{ID: "perm", From: from, To: to, Content: content}, nil
		})

	emit(t, h, ca, EventSendMessage, SendMessagePayload{ID: "t1", From: a, To: b, Content: "last words"})
	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("write never started")
	}
	cancel()

	select {
	case <-h.Done():
		t.Fatal("hub stopped with a write in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-h.Done():
	case <-time.After(waitFor):
		t.Fatal("hub did not stop after the write finished")
	}
	assert.NoError(t, writeErr)
}
