package relay

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()
	compact := strings.ReplaceAll(id.String(), "-", "")
	c1, c2 := NewClient(nil, 1), NewClient(nil, 1)

	assert.True(t, r.Join(id.String(), c1))
	assert.False(t, r.Join(compact, c2))
	assert.ElementsMatch(t, []*Client{c1, c2}, r.Members(id.String()))
	assert.Len(t, r.All(), 2)

	assert.False(t, r.Leave(id.String(), NewClient(nil, 1)))
	assert.False(t, r.Leave(id.String(), c1))
	assert.True(t, r.Leave(compact, c2))
	assert.False(t, r.IsOnline(id.String()))
	assert.Empty(t, r.Online())
	assert.Empty(t, r.Members(id.String()))

	// leaving twice is harmless
	assert.False(t, r.Leave(id.String(), c2))
}
