// Package model defines data structure.
package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/johndosdos/skillxchange/internal/apperr"
)

// DefaultMaxContentLength bounds message content, counted in runes.
const DefaultMaxContentLength = 2000

// Message is one chat utterance as persisted by the message store.
type Message struct {
	ID        string    `json:"_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// NewMessage validates a draft and returns it with canonical user refs and
// trimmed content. The store assigns ID and Timestamp.
func NewMessage(from, to, content string, maxLen int) (Message, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	content = strings.TrimSpace(content)
	if from == "" || to == "" || content == "" {
		return Message{}, apperr.Validation("Missing fields")
	}

	if maxLen <= 0 {
		maxLen = DefaultMaxContentLength
	}
	if utf8.RuneCountInString(content) > maxLen {
		return Message{}, apperr.Validation("Message content is too long")
	}

	return Message{
		From:    Canonical(from),
		To:      Canonical(to),
		Content: content,
	}, nil
}

// Counterpart returns the other participant of m as seen from user.
func (m Message) Counterpart(user string) string {
	if SameUser(m.From, user) {
		return m.To
	}
	return m.From
}
