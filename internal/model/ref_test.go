package model

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForms(t *testing.T) {
	id := uuid.New()
	canonical := id.String()
	compact := strings.ReplaceAll(canonical, "-", "")

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"canonical", canonical, []string{canonical, compact}},
		{"compact", compact, []string{canonical, compact}},
		{"upper", strings.ToUpper(canonical), []string{canonical, compact, strings.ToUpper(canonical)}},
		{"not_a_uuid", "legacy-user-7", []string{"legacy-user-7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Forms(tt.in))
		})
	}
}

func TestCanonical(t *testing.T) {
	id := uuid.New()
	compact := strings.ReplaceAll(id.String(), "-", "")

	assert.Equal(t, id.String(), Canonical(compact))
	assert.Equal(t, id.String(), Canonical(" "+id.String()+" "))
	assert.Equal(t, "bob", Canonical("bob"))
	assert.True(t, SameUser(compact, id.String()))
	assert.False(t, SameUser(id.String(), uuid.NewString()))
}

func TestNewMessage(t *testing.T) {
	a, b := uuid.NewString(), uuid.NewString()

	t.Run("valid", func(t *testing.T) {
		msg, err := NewMessage(a, strings.ReplaceAll(b, "-", ""), "  hello  ", 0)
		require.NoError(t, err)
		assert.Equal(t, a, msg.From)
		assert.Equal(t, b, msg.To)
		assert.Equal(t, "hello", msg.Content)
		assert.False(t, msg.Read)
	})

	t.Run("missing_fields", func(t *testing.T) {
		for _, args := range [][3]string{{"", b, "hi"}, {a, "", "hi"}, {a, b, "   "}} {
			_, err := NewMessage(args[0], args[1], args[2], 0)
			require.Error(t, err)
			assert.Equal(t, "Missing fields", err.Error())
		}
	})

	t.Run("too_long", func(t *testing.T) {
		_, err := NewMessage(a, b, strings.Repeat("é", 11), 10)
		require.Error(t, err)

		_, err = NewMessage(a, b, strings.Repeat("é", 10), 10)
		require.NoError(t, err)
	})

	t.Run("counterpart", func(t *testing.T) {
		msg := Message{From: a, To: b}
		assert.Equal(t, b, msg.Counterpart(a))
		assert.Equal(t, a, msg.Counterpart(b))
	})
}
