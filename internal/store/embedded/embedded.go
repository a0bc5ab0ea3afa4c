// Package embedded implements the chat store on an embedded BadgerDB.
//
// Key layout (every user ref is canonicalised and query-escaped):
//
//	conv/{a}/{b}/{unix_nano:019}/{id}  message record, a <= b
//	unread/{to}/{from}/{id}            conv key of an unread message
//	peer/{user}/{other}                contact marker, written both ways
//	user/{id}                          user record
//	email/{lower(email)}               user id
//	username/{lower(username)}         user id
//
// The padded timestamp keeps a conversation prefix scan in chronological
// order, with the time-ordered id breaking ties.
package embedded

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/store"
)

const maxConflictRetries = 5

var _ store.Store = (*Store)(nil)

type Store struct {
	db         *badger.DB
	log        *slog.Logger
	maxContent int
	ownsDB     bool
}

// New wraps an open database. The caller keeps ownership of db.
func New(db *badger.DB, log *slog.Logger, maxContent int) *Store {
	if maxContent <= 0 {
		maxContent = model.DefaultMaxContentLength
	}
	return &Store{db: db, log: log, maxContent: maxContent}
}

// Open opens (or creates) a database under dir. An empty dir keeps all
// data in memory.
func Open(dir string, log *slog.Logger, maxContent int) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log: log})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("internal/store: open badger: %w", err)
	}

	s := New(db, log, maxContent)
	s.ownsDB = true
	return s, nil
}

func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying when a concurrent
// commit touched a key fn read. fn must not keep state across attempts.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := range maxConflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("badger transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}

// persistence keeps typed errors raised inside a transaction and wraps
// everything else.
func persistence(msg string, err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Persistence(msg, err)
}

func ref(id string) string {
	return url.QueryEscape(model.Canonical(id))
}

func unref(s string) string {
	v, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return v
}

func convPrefix(a, b string) []byte {
	ra, rb := ref(a), ref(b)
	if rb < ra {
		ra, rb = rb, ra
	}
	return []byte("conv/" + ra + "/" + rb + "/")
}

func convKey(m model.Message) []byte {
	return fmt.Appendf(convPrefix(m.From, m.To), "%019d/%s", m.Timestamp.UnixNano(), m.ID)
}

func unreadPrefix(to, from string) []byte {
	if from == "" {
		return []byte("unread/" + ref(to) + "/")
	}
	return []byte("unread/" + ref(to) + "/" + ref(from) + "/")
}

func peerPrefix(user string) []byte {
	return []byte("peer/" + ref(user) + "/")
}

func userKey(id string) []byte {
	return []byte("user/" + id)
}

func emailKey(email string) []byte {
	return []byte("email/" + url.QueryEscape(strings.ToLower(strings.TrimSpace(email))))
}

func usernameKey(username string) []byte {
	return []byte("username/" + url.QueryEscape(strings.ToLower(strings.TrimSpace(username))))
}

// badgerLogger routes badger's own logging through slog.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badger")
}

func (l badgerLogger) Warningf(f string, v ...any) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badger")
}

// Badger is chatty at info level, so it is demoted to debug.
func (l badgerLogger) Infof(f string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badger")
}

func (l badgerLogger) Debugf(f string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badger")
}
