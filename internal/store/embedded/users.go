package embedded

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/store"
)

// userRecord is the stored form of a user, credentials included.
type userRecord struct {
	model.Profile
	PasswordHash string `json:"passwordHash"`
}

func (r userRecord) toModel() model.User {
	return model.User{Profile: r.Profile, PasswordHash: r.PasswordHash}
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, persistence("Error creating user", err)
	}

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.ProfileVisibility == "" {
		u.ProfileVisibility = model.VisibilityPublic
	}
	if u.SkillsOffered == nil {
		u.SkillsOffered = model.Skills{}
	}
	if u.SkillsWanted == nil {
		u.SkillsWanted = model.Skills{}
	}
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.IsActive = true
	u.CreatedAt = store.Now()
	u.UpdatedAt = u.CreatedAt

	data, err := json.Marshal(userRecord{Profile: u.Profile, PasswordHash: u.PasswordHash})
	if err != nil {
		return model.User{}, persistence("Error creating user", err)
	}

	id := u.ID.String()
	err = s.update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{emailKey(u.Email), usernameKey(u.Username)} {
			_, err := txn.Get(key)
			if err == nil {
				return apperr.Validation("User already exists with this email or username")
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		if err := txn.Set(userKey(id), data); err != nil {
			return err
		}
		if err := txn.Set(emailKey(u.Email), []byte(id)); err != nil {
			return err
		}
		return txn.Set(usernameKey(u.Username), []byte(id))
	})
	if err != nil {
		return model.User{}, persistence("Error creating user", err)
	}

	return u, nil
}

func getUser(txn *badger.Txn, id string) (model.User, error) {
	item, err := txn.Get(userKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.User{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return model.User{}, err
	}

	var rec userRecord
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
		return model.User{}, err
	}
	return rec.toModel(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, persistence("Error fetching user", err)
	}

	var u model.User
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		u, err = getUser(txn, id.String())
		return err
	})
	if err != nil {
		return model.User{}, persistence("Error fetching user", err)
	}

	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, persistence("Error fetching user", err)
	}

	var u model.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperr.NotFound("User not found")
		}
		if err != nil {
			return err
		}

		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		u, err = getUser(txn, string(id))
		return err
	})
	if err != nil {
		return model.User{}, persistence("Error fetching user", err)
	}

	return u, nil
}

func (s *Store) ListUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistence("Error fetching users", err)
	}

	users := []model.User{}
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			u, err := getUser(txn, id.String())
			if apperr.Is(err, apperr.KindNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, persistence("Error fetching users", err)
	}

	slices.SortFunc(users, func(a, b model.User) int { return cmp.Compare(a.Username, b.Username) })
	return users, nil
}

func (s *Store) ListActiveUsers(ctx context.Context) ([]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistence("Error fetching users", err)
	}

	users := []model.User{}
	prefix := []byte("user/")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec userRecord
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			if rec.IsActive {
				users = append(users, rec.toModel())
			}
		}
		return nil
	})
	if err != nil {
		return nil, persistence("Error fetching users", err)
	}

	slices.SortFunc(users, func(a, b model.User) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return users, nil
}
