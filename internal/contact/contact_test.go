package contact

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/mocks"
	"github.com/johndosdos/skillxchange/internal/model"
)

func newDiscovery(t *testing.T) (*Discovery, *mocks.MockMessages, *mocks.MockUsers) {
	ctrl := gomock.NewController(t)
	msgs := mocks.NewMockMessages(ctrl)
	users := mocks.NewMockUsers(ctrl)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDiscovery(msgs, users, log), msgs, users
}

func TestContacts(t *testing.T) {
	self := uuid.New()
	b, c, inactive := uuid.New(), uuid.New(), uuid.New()
	compactB := strings.ReplaceAll(b.String(), "-", "")

	d, msgs, users := newDiscovery(t)
	msgs.EXPECT().
		Counterparts(gomock.Any(), self.String()).
		Return([]string{b.String(), compactB, c.String(), self.String(), inactive.String(), "not-a-uuid"}, nil)
	users.EXPECT().
		ListUsersByIDs(gomock.Any(), []uuid.UUID{b, c, inactive}).
		Return([]model.User{
			{Profile: model.Profile{ID: b, Username: "bob", IsActive: true}, PasswordHash: "x"},
			{Profile: model.Profile{ID: c, Username: "carol", IsActive: true}},
			{Profile: model.Profile{ID: inactive, Username: "gone", IsActive: false}},
		}, nil)

	got, err := d.Contacts(context.Background(), self.String())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].Username)
	assert.Equal(t, "carol", got[1].Username)
}

func TestContactsNoMessages(t *testing.T) {
	d, msgs, users := newDiscovery(t)
	msgs.EXPECT().Counterparts(gomock.Any(), gomock.Any()).Return(nil, nil)
	users.EXPECT().ListUsersByIDs(gomock.Any(), gomock.Any()).Times(0)

	got, err := d.Contacts(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestContactsInvalidUser(t *testing.T) {
	d, msgs, _ := newDiscovery(t)
	msgs.EXPECT().Counterparts(gomock.Any(), gomock.Any()).Times(0)

	_, err := d.Contacts(context.Background(), "bob")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestContactsStoreError(t *testing.T) {
	d, msgs, _ := newDiscovery(t)
	cause := apperr.Persistence("Error fetching chat contacts", errors.New("db down"))
	msgs.EXPECT().Counterparts(gomock.Any(), gomock.Any()).Return(nil, cause)

	_, err := d.Contacts(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 500, apperr.Status(err))
}
