// Package contact derives a user's chat contacts from their message history.
package contact

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/store"
)

type Discovery struct {
	messages store.Messages
	users    store.Users
	log      *slog.Logger
}

func NewDiscovery(messages store.Messages, users store.Users, log *slog.Logger) *Discovery {
	return &Discovery{messages: messages, users: users, log: log}
}

// Contacts returns the public profiles of every active user that userID has
// exchanged at least one message with, in either direction.
func (d *Discovery) Contacts(ctx context.Context, userID string) ([]model.Profile, error) {
	self, err := model.ParseUserID(userID)
	if err != nil {
		return nil, apperr.Validation("Invalid user id")
	}

	refs, err := d.messages.Counterparts(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := lo.Uniq(lo.FilterMap(refs, func(ref string, _ int) (uuid.UUID, bool) {
		id, err := model.ParseUserID(ref)
		if err != nil {
			d.log.WarnContext(ctx, "skipping counterpart with malformed id", "ref", ref)
			return uuid.Nil, false
		}
		return id, id != self
	}))
	if len(ids) == 0 {
		return []model.Profile{}, nil
	}

	users, err := d.users.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	return lo.FilterMap(users, func(u model.User, _ int) (model.Profile, bool) {
		return u.Public(), u.IsActive
	}), nil
}
