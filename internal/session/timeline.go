package session

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/relay"
)

// EntryState is where a timeline entry stands with respect to the store.
type EntryState int

const (
	// Pending entries are shown but not yet persisted.
	Pending EntryState = iota
	Confirmed
	// Failed entries are dropped from the timeline; the state is only ever
	// seen on the value returned by Fail.
	Failed
)

func (s EntryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type Entry struct {
	State   EntryState
	TempID  string
	Message model.Message
}

// Timeline is the local view of one conversation. It is not safe for
// concurrent use.
type Timeline struct {
	entries []Entry
}

func NewTempID() string {
	return "tmp-" + uuid.NewString()
}

// Load merges persisted history into the timeline. Entries whose record is
// in the history are replaced by it: confirmed ones by id, pending ones by
// sender and content, each history record standing in for at most one
// entry. Everything else is kept, and the result is ordered by time.
func (t *Timeline) Load(history []model.Message) {
	known := lo.SliceToMap(t.entries, func(e Entry) (string, struct{}) { return e.Message.ID, struct{}{} })
	inHistory := lo.SliceToMap(history, func(m model.Message) (string, struct{}) { return m.ID, struct{}{} })

	// records that may stand in for a pending entry
	unclaimed := lo.Filter(history, func(m model.Message, _ int) bool {
		_, ok := known[m.ID]
		return !ok
	})

	entries := lo.Map(history, func(m model.Message, _ int) Entry { return Entry{State: Confirmed, Message: m} })
	for _, e := range t.entries {
		switch e.State {
		case Confirmed:
			if _, ok := inHistory[e.Message.ID]; ok {
				continue
			}
		case Pending:
			i := slices.IndexFunc(unclaimed, func(m model.Message) bool {
				return model.SameUser(m.From, e.Message.From) && m.Content == e.Message.Content
			})
			if i >= 0 {
				unclaimed = slices.Delete(unclaimed, i, i+1)
				continue
			}
		}
		entries = append(entries, e)
	}

	slices.SortStableFunc(entries, func(x, y Entry) int {
		if c := x.Message.Timestamp.Compare(y.Message.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(x.Message.ID, y.Message.ID)
	})
	t.entries = entries
}

// AddPending appends an optimistic entry for an outgoing message.
func (t *Timeline) AddPending(from, to, content string, now time.Time) Entry {
	tempID := NewTempID()
	e := Entry{
		State:  Pending,
		TempID: tempID,
		Message: model.Message{
			ID:        tempID,
			From:      model.Canonical(from),
			To:        model.Canonical(to),
			Content:   content,
			Timestamp: now.UTC(),
		},
	}
	t.entries = append(t.entries, e)
	return e
}

// Incoming applies a newMessage broadcast. A broadcast whose temporary or
// permanent id is already on the timeline is an echo and changes nothing.
func (t *Timeline) Incoming(b relay.Broadcast) bool {
	if b.TempID != "" && t.indexOfTemp(b.TempID) >= 0 {
		return false
	}
	if t.indexOfID(b.ID) >= 0 {
		return false
	}

	state := Confirmed
	if b.TempID != "" {
		state = Pending
	}
	t.entries = append(t.entries, Entry{State: state, TempID: b.TempID, Message: b.Message})
	return true
}

// Confirm swaps a pending entry for its persisted record. The entry is found
// by temporary id, then by the first pending entry with the same sender and
// content. An unmatched confirmation is appended unless its record is
// already present.
func (t *Timeline) Confirm(tempID string, msg model.Message) bool {
	i := t.indexOfTemp(tempID)
	if i < 0 || t.entries[i].State != Pending {
		i = slices.IndexFunc(t.entries, func(e Entry) bool {
			return e.State == Pending &&
				model.SameUser(e.Message.From, msg.From) &&
				e.Message.Content == msg.Content
		})
	}

	if dup := t.indexOfID(msg.ID); dup >= 0 {
		if i < 0 || dup == i {
			return false
		}
		// the record already arrived by another path
		t.entries = slices.Delete(t.entries, i, i+1)
		return true
	}

	if i < 0 {
		t.entries = append(t.entries, Entry{State: Confirmed, TempID: tempID, Message: msg})
		return true
	}

	t.entries[i].State = Confirmed
	t.entries[i].Message = msg
	return true
}

// Fail removes the pending entry with tempID and returns it.
func (t *Timeline) Fail(tempID string) (Entry, bool) {
	i := t.indexOfTemp(tempID)
	if i < 0 || t.entries[i].State != Pending {
		return Entry{}, false
	}

	e := t.entries[i]
	e.State = Failed
	t.entries = slices.Delete(t.entries, i, i+1)
	return e, true
}

func (t *Timeline) Entries() []Entry {
	return slices.Clone(t.entries)
}

// Messages returns the visible messages in display order.
func (t *Timeline) Messages() []model.Message {
	return lo.Map(t.entries, func(e Entry, _ int) model.Message { return e.Message })
}

func (t *Timeline) indexOfTemp(tempID string) int {
	if tempID == "" {
		return -1
	}
	return slices.IndexFunc(t.entries, func(e Entry) bool { return e.TempID == tempID })
}

func (t *Timeline) indexOfID(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(t.entries, func(e Entry) bool { return e.Message.ID == id })
}
