package embedded

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/store"
)

func (s *Store) Append(ctx context.Context, from, to, content string) (model.Message, error) {
	msg, err := model.NewMessage(from, to, content, s.maxContent)
	if err != nil {
		return model.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Message{}, persistence("Error sending message", err)
	}

	msg.ID = store.NewMessageID()
	msg.Timestamp = store.Now()

	data, err := json.Marshal(msg)
	if err != nil {
		return model.Message{}, persistence("Error sending message", err)
	}

	ck := convKey(msg)
	err = s.update(func(txn *badger.Txn) error {
		if err := txn.Set(ck, data); err != nil {
			return err
		}
		if err := txn.Set(append(unreadPrefix(msg.To, msg.From), msg.ID...), ck); err != nil {
			return err
		}
		if err := txn.Set(append(peerPrefix(msg.From), ref(msg.To)...), nil); err != nil {
			return err
		}
		return txn.Set(append(peerPrefix(msg.To), ref(msg.From)...), nil)
	})
	if err != nil {
		return model.Message{}, persistence("Error sending message", err)
	}

	return msg, nil
}

// ListBetween needs no union over id forms here: refs are canonicalised
// before they become part of a key.
func (s *Store) ListBetween(ctx context.Context, userA, userB string) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistence("Error fetching messages", err)
	}

	messages := []model.Message{}
	prefix := convPrefix(userA, userB)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg model.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, persistence("Error fetching messages", err)
	}

	return messages, nil
}

func (s *Store) MarkRead(ctx context.Context, recipient, sender string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, persistence("Error marking messages as read", err)
	}

	var marked int64
	prefix := unreadPrefix(recipient, sender)
	err := s.update(func(txn *badger.Txn) error {
		marked = 0

		type pending struct{ unreadKey, convKey []byte }
		var todo []pending

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			ck, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			todo = append(todo, pending{unreadKey: item.KeyCopy(nil), convKey: ck})
		}
		it.Close()

		for _, p := range todo {
			item, err := txn.Get(p.convKey)
			if err != nil {
				return err
			}

			var msg model.Message
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &msg) }); err != nil {
				return err
			}
			msg.Read = true

			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := txn.Set(p.convKey, data); err != nil {
				return err
			}
			if err := txn.Delete(p.unreadKey); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, persistence("Error marking messages as read", err)
	}

	return marked, nil
}

func (s *Store) UnreadCountsByRecipient(ctx context.Context, recipient string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistence("Error fetching unread counts", err)
	}

	raw := make(map[string]int)
	prefix := unreadPrefix(recipient, "")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			// remaining key: {from}/{id}
			rest := bytes.TrimPrefix(it.Item().Key(), prefix)
			from, _, ok := bytes.Cut(rest, []byte("/"))
			if !ok {
				continue
			}
			raw[unref(string(from))]++
		}
		return nil
	})
	if err != nil {
		return nil, persistence("Error fetching unread counts", err)
	}

	return store.MergeCounts(raw), nil
}

func (s *Store) Counterparts(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistence("Error fetching chat contacts", err)
	}

	var peers []string
	prefix := peerPrefix(userID)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			peers = append(peers, unref(string(bytes.TrimPrefix(it.Item().Key(), prefix))))
		}
		return nil
	})
	if err != nil {
		return nil, persistence("Error fetching chat contacts", err)
	}

	return lo.Without(peers, model.Canonical(userID)), nil
}
