// Package relay delivers chat events between websocket connections. Every
// joined connection sits in the room of its user; a send reaches both rooms
// before it is persisted.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/store"
)

// Limit is a token bucket of Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

type Options struct {
	MaxContent   int
	ClientBuffer int
	MessageLimit Limit
	TypingLimit  Limit
}

// Registration asks the hub to adopt a client. UserID, when set, joins the
// client to that room straight away. Done is closed once the hub has adopted
// the client.
type Registration struct {
	Client *Client
	UserID string
	Done   chan struct{}
}

type Inbound struct {
	Client *Client
	Event  RawEvent
}

type persistResult struct {
	tempID string
	sender string
	saved  model.Message
	err    error
}

type Hub struct {
	store    store.Messages
	registry *Registry
	opts     Options
	clients  map[*Client]struct{}

	Register   chan Registration
	Unregister chan *Client
	ClientMsg  chan Inbound
	persisted  chan persistResult
	notify     chan model.Message
	done       chan struct{}

	// writes tracks persist goroutines; stopped closes once they are all back.
	writes  sync.WaitGroup
	stopped chan struct{}
}

func NewHub(messages store.Messages, opts Options) *Hub {
	if opts.MaxContent <= 0 {
		opts.MaxContent = model.DefaultMaxContentLength
	}
	return &Hub{
		store:      messages,
		registry:   NewRegistry(),
		opts:       opts,
		clients:    make(map[*Client]struct{}),
		Register:   make(chan Registration),
		Unregister: make(chan *Client),
		ClientMsg:  make(chan Inbound, 1024),
		persisted:  make(chan persistResult, 1024),
		notify:     make(chan model.Message, 1024),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Done is closed once Run has returned and every accepted message has been
// written to the store or has failed.
func (h *Hub) Done() <-chan struct{} {
	return h.stopped
}

// NewClient returns a client configured with the hub's buffer and limits.
func (h *Hub) NewClient(conn *websocket.Conn) *Client {
	c := NewClient(conn, h.opts.ClientBuffer)
	c.SetMessageLimiter(h.opts.MessageLimit.Requests, h.opts.MessageLimit.Window)
	c.SetTypingLimiter(h.opts.TypingLimit.Requests, h.opts.TypingLimit.Window)
	return c
}

// Run manages the hub's traffic until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.writes.Wait()
		close(h.stopped)
	}()

	for {
		select {
		case reg := <-h.Register:
			h.clients[reg.Client] = struct{}{}
			reg.Client.hub = h
			if reg.UserID != "" {
				h.join(ctx, reg.Client, reg.UserID)
			}
			close(reg.Done)

		case c := <-h.Unregister:
			h.drop(ctx, c)

		case in := <-h.ClientMsg:
			h.handle(ctx, in)

		case res := <-h.persisted:
			h.confirm(ctx, res)

		case msg := <-h.notify:
			h.toRooms(Event{Name: EventNewMessage, Data: Broadcast{Message: msg}}, msg.From, msg.To)

		case <-ctx.Done():
			slog.InfoContext(ctx, "hub stopped", "clients", len(h.clients))
			for c := range h.clients {
				close(c.MessageCh)
			}
			clear(h.clients)
			return
		}
	}
}

// Notify broadcasts an already persisted message to both participants.
func (h *Hub) Notify(ctx context.Context, msg model.Message) {
	select {
	case h.notify <- msg:
	case <-h.done:
	case <-ctx.Done():
	}
}

// Add registers c and waits until the hub has adopted it. It reports false
// when the hub has stopped or ctx ends first.
func (h *Hub) Add(ctx context.Context, c *Client, userID string) bool {
	reg := Registration{Client: c, UserID: userID, Done: make(chan struct{})}
	select {
	case h.Register <- reg:
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}

	// Wait for registration to complete
	<-reg.Done
	return true
}

func (h *Hub) submit(ctx context.Context, in Inbound) bool {
	select {
	case h.ClientMsg <- in:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) drop(ctx context.Context, c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.leave(ctx, c)
	close(c.MessageCh)
}

func (h *Hub) join(ctx context.Context, c *Client, userID string) {
	userID = model.Canonical(userID)
	if c.userID == userID {
		return
	}
	h.leave(ctx, c)

	c.userID = userID
	if h.registry.Join(userID, c) {
		slog.InfoContext(ctx, "user online", "user_id", userID)
		h.toAll(Event{Name: EventUserStatusChanged, Data: StatusPayload{UserID: userID, Status: StatusOnline}})
	}
}

func (h *Hub) leave(ctx context.Context, c *Client) {
	if c.userID == "" {
		return
	}
	userID := c.userID
	c.userID = ""
	if h.registry.Leave(userID, c) {
		slog.InfoContext(ctx, "user offline", "user_id", userID)
		h.toAll(Event{Name: EventUserStatusChanged, Data: StatusPayload{UserID: userID, Status: StatusOffline}})
	}
}

func (h *Hub) handle(ctx context.Context, in Inbound) {
	c := in.Client
	if _, ok := h.clients[c]; !ok {
		return
	}

	switch in.Event.Name {
	case EventJoin:
		userID := parseJoin(in.Event.Data)
		if userID == "" {
			c.send(errorEvent("Missing fields", ""))
			return
		}
		h.join(ctx, c, userID)

	case EventSendMessage:
		h.sendMessage(ctx, c, in.Event.Data)

	case EventTyping, EventStopTyping:
		h.typing(c, in.Event.Name, in.Event.Data)

	default:
		slog.DebugContext(ctx, "unknown event", "event", in.Event.Name)
		c.send(errorEvent("Invalid event", ""))
	}
}

func (h *Hub) sendMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.send(errorEvent("Invalid payload", ""))
		return
	}
	if c.userID == "" {
		c.send(errorEvent("Join required", p.ID))
		return
	}
	if !model.SameUser(p.From, c.userID) {
		c.send(errorEvent("Sender does not match connection", p.ID))
		return
	}
	if !allow(c.messageLim) {
		c.send(errorEvent("rate limit exceeded", p.ID))
		return
	}

	msg, err := model.NewMessage(p.From, p.To, CleanContent(p.Content), h.opts.MaxContent)
	if err != nil {
		c.send(errorEvent(apperr.Public(err), p.ID))
		return
	}

	tempID := p.ID
	if tempID == "" {
		tempID = "tmp-" + uuid.NewString()
	}
	msg.ID = tempID
	msg.Timestamp = time.Now().UTC()
	if p.Timestamp != nil && !p.Timestamp.IsZero() {
		msg.Timestamp = p.Timestamp.UTC()
	}

	h.toRooms(Event{Name: EventNewMessage, Data: Broadcast{Message: msg, TempID: tempID}}, msg.From, msg.To)

	h.writes.Add(1)
	go h.persist(context.WithoutCancel(ctx), tempID, msg)
}

// persist runs outside the hub loop and reports back through h.persisted.
// Its context outlives the hub so a shutdown does not lose accepted messages.
func (h *Hub) persist(ctx context.Context, tempID string, msg model.Message) {
	defer h.writes.Done()

	saved, err := h.store.Append(ctx, msg.From, msg.To, msg.Content)

	select {
	case h.persisted <- persistResult{tempID: tempID, sender: msg.From, saved: saved, err: err}:
	case <-h.done:
	}
}

func (h *Hub) confirm(ctx context.Context, res persistResult) {
	if res.err != nil {
		slog.ErrorContext(ctx, "failed to persist message",
			"error", res.err,
			"temp_id", res.tempID,
			"from", res.sender)
		h.toRooms(errorEvent(apperr.Public(res.err), res.tempID), res.sender)
		return
	}

	h.toRooms(Event{
		Name: EventMessageConfirmed,
		Data: Confirmation{TempID: res.tempID, ConfirmedMessage: res.saved},
	}, res.saved.From, res.saved.To)
}

func (h *Hub) typing(c *Client, name string, data json.RawMessage) {
	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.From == "" || p.To == "" {
		return
	}
	if !allow(c.typingLim) {
		c.send(errorEvent("rate limit exceeded", ""))
		return
	}

	out := EventUserTyping
	if name == EventStopTyping {
		out = EventUserStoppedTyping
	}
	h.toRooms(Event{Name: out, Data: TypingNotice{From: model.Canonical(p.From)}}, p.To)
}

// toRooms delivers ev once to every connection in the given rooms.
func (h *Hub) toRooms(ev Event, userIDs ...string) {
	rooms := lo.Uniq(lo.Map(userIDs, func(id string, _ int) string { return model.Canonical(id) }))
	for _, id := range rooms {
		for _, c := range h.registry.Members(id) {
			c.send(ev)
		}
	}
}

func (h *Hub) toAll(ev Event) {
	for _, c := range h.registry.All() {
		c.send(ev)
	}
}

func errorEvent(msg, tempID string) Event {
	return Event{Name: EventMessageError, Data: ErrorPayload{Error: msg, TempID: tempID}}
}
