// Package session is a Go client for the chat service. It keeps an
// optimistic timeline per conversation and reconciles it with what the
// relay reports back.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/relay"
)

const DefaultPollInterval = 5 * time.Second

// ConvState is the loading state of a conversation.
type ConvState int

const (
	Idle ConvState = iota
	LoadingHistory
	Ready
)

func (s ConvState) String() string {
	switch s {
	case LoadingHistory:
		return "loading-history"
	case Ready:
		return "ready"
	default:
		return "idle"
	}
}

type conversation struct {
	state    ConvState
	timeline Timeline
	typing   bool
}

// Update reports that a conversation changed because of a relay event.
type Update struct {
	Event string
	Peer  string
}

type Options struct {
	// Token pre-joins the connection; the session still sends join.
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Session struct {
	self string
	api  *API
	conn *websocket.Conn
	log  *slog.Logger

	mu     sync.Mutex
	convs  map[string]*conversation
	unread map[string]int
	online map[string]bool

	Updates chan Update

	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects self to the service at baseURL and joins its room.
func Dial(ctx context.Context, baseURL, self string, opts Options) (*Session, error) {
	if _, err := model.ParseUserID(self); err != nil {
		return nil, fmt.Errorf("session: invalid user id %q: %w", self, err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	wsURL := strings.TrimRight(baseURL, "/") + "/ws"
	if opts.Token != "" {
		wsURL += "?token=" + url.QueryEscape(opts.Token)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", wsURL, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		self:    model.Canonical(self),
		api:     NewAPI(baseURL, opts.HTTPClient),
		conn:    conn,
		log:     opts.Logger,
		convs:   make(map[string]*conversation),
		unread:  make(map[string]int),
		online:  make(map[string]bool),
		Updates: make(chan Update, 64),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if err := s.emit(ctx, relay.EventJoin, s.self); err != nil {
		cancel()
		conn.CloseNow()
		return nil, err
	}

	go s.readLoop(runCtx)
	return s, nil
}

func (s *Session) Self() string { return s.self }

func (s *Session) API() *API { return s.api }

func (s *Session) Close() error {
	err := s.conn.Close(websocket.StatusNormalClosure, "bye")
	s.cancel()
	<-s.done
	return err
}

// Open loads the history with peer, marks it read and makes the
// conversation ready.
func (s *Session) Open(ctx context.Context, peer string) error {
	peer = model.Canonical(peer)

	s.mu.Lock()
	s.conv(peer).state = LoadingHistory
	s.mu.Unlock()

	history, err := s.api.History(ctx, s.self, peer)
	if err != nil {
		s.setState(peer, Idle)
		return err
	}
	if err := s.api.MarkRead(ctx, s.self, peer); err != nil {
		s.setState(peer, Idle)
		return err
	}

	s.mu.Lock()
	c := s.conv(peer)
	c.timeline.Load(history)
	c.state = Ready
	delete(s.unread, peer)
	s.mu.Unlock()

	return nil
}

// Send adds an optimistic entry and submits it to the relay. The relay is
// the only write path.
func (s *Session) Send(ctx context.Context, peer, content string) (Entry, error) {
	peer = model.Canonical(peer)

	s.mu.Lock()
	e := s.conv(peer).timeline.AddPending(s.self, peer, content, time.Now())
	s.mu.Unlock()

	err := s.emit(ctx, relay.EventSendMessage, relay.SendMessagePayload{
		ID:        e.TempID,
		From:      s.self,
		To:        peer,
		Content:   content,
		Timestamp: &e.Message.Timestamp,
	})
	if err != nil {
		s.mu.Lock()
		s.conv(peer).timeline.Fail(e.TempID)
		s.mu.Unlock()
		return Entry{}, err
	}

	return e, nil
}

// Typing tells peer whether self is typing.
func (s *Session) Typing(ctx context.Context, peer string, typing bool) error {
	name := relay.EventStopTyping
	if typing {
		name = relay.EventTyping
	}
	return s.emit(ctx, name, relay.TypingPayload{From: s.self, To: model.Canonical(peer)})
}

func (s *Session) State(peer string) ConvState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv(model.Canonical(peer)).state
}

func (s *Session) Entries(peer string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv(model.Canonical(peer)).timeline.Entries()
}

func (s *Session) Messages(peer string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv(model.Canonical(peer)).timeline.Messages()
}

// IsTyping reports whether peer is typing to self.
func (s *Session) IsTyping(peer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv(model.Canonical(peer)).typing
}

func (s *Session) IsOnline(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[model.Canonical(user)]
}

// Unread returns the counts from the last poll.
func (s *Session) Unread() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.unread)
}

// PollUnread refreshes unread counts every interval until ctx ends. onChange
// may be nil.
func (s *Session) PollUnread(ctx context.Context, interval time.Duration, onChange func(map[string]int)) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		counts, err := s.api.UnreadCounts(ctx, s.self)
		switch {
		case err != nil && ctx.Err() == nil:
			s.log.WarnContext(ctx, "failed to refresh unread counts", "error", err)
		case err == nil:
			s.mu.Lock()
			changed := !maps.Equal(s.unread, counts)
			s.unread = counts
			s.mu.Unlock()
			if changed && onChange != nil {
				onChange(maps.Clone(counts))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) emit(ctx context.Context, name string, data any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, s.conn, relay.Event{Name: name, Data: data}); err != nil {
		return fmt.Errorf("session: send %s: %w", name, err)
	}
	return nil
}

func (s *Session) readLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.Updates)

	for {
		var ev relay.RawEvent
		if err := wsjson.Read(ctx, s.conn, &ev); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				s.log.WarnContext(ctx, "session read failed", "error", err)
			}
			return
		}

		peer, err := s.apply(ev)
		if err != nil {
			s.log.DebugContext(ctx, "ignoring event", "event", ev.Name, "error", err)
			continue
		}

		select {
		case s.Updates <- Update{Event: ev.Name, Peer: peer}:
		default:
		}
	}
}

// apply folds one relay event into the local state and returns the peer it
// concerns.
func (s *Session) apply(ev relay.RawEvent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Name {
	case relay.EventNewMessage:
		var b relay.Broadcast
		if err := json.Unmarshal(ev.Data, &b); err != nil {
			return "", err
		}
		peer := b.Counterpart(s.self)
		s.conv(peer).timeline.Incoming(b)
		return peer, nil

	case relay.EventMessageConfirmed:
		var c relay.Confirmation
		if err := json.Unmarshal(ev.Data, &c); err != nil {
			return "", err
		}
		peer := c.ConfirmedMessage.Counterpart(s.self)
		s.conv(peer).timeline.Confirm(c.TempID, c.ConfirmedMessage)
		return peer, nil

	case relay.EventMessageError:
		var p relay.ErrorPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return "", err
		}
		for peer, c := range s.convs {
			if _, ok := c.timeline.Fail(p.TempID); ok {
				s.log.Warn("message failed", "temp_id", p.TempID, "error", p.Error)
				return peer, nil
			}
		}
		return "", nil

	case relay.EventUserTyping, relay.EventUserStoppedTyping:
		var p relay.TypingNotice
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return "", err
		}
		peer := model.Canonical(p.From)
		s.conv(peer).typing = ev.Name == relay.EventUserTyping
		return peer, nil

	case relay.EventUserStatusChanged:
		var p relay.StatusPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return "", err
		}
		peer := model.Canonical(p.UserID)
		s.online[peer] = p.Status == relay.StatusOnline
		return peer, nil

	default:
		return "", fmt.Errorf("unknown event %q", ev.Name)
	}
}

// conv must be called with s.mu held.
func (s *Session) conv(peer string) *conversation {
	c, ok := s.convs[peer]
	if !ok {
		c = &conversation{}
		s.convs[peer] = c
	}
	return c
}

func (s *Session) setState(peer string, st ConvState) {
	s.mu.Lock()
	s.conv(peer).state = st
	s.mu.Unlock()
}
