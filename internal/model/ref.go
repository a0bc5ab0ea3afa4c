package model

import (
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// User ids are UUIDs. New records hold the canonical hyphenated form, older
// ones may hold the compact 32 hex digit form or whatever the client sent.

// Canonical returns the hyphenated lowercase UUID for id when it parses,
// and the trimmed input otherwise.
func Canonical(id string) string {
	id = strings.TrimSpace(id)
	u, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return u.String()
}

// Forms returns every representation a stored record may carry for id.
func Forms(id string) []string {
	id = strings.TrimSpace(id)
	u, err := uuid.Parse(id)
	if err != nil {
		return []string{id}
	}
	canonical := u.String()
	compact := strings.ReplaceAll(canonical, "-", "")
	return lo.Uniq([]string{canonical, compact, id})
}

// SameUser reports whether a and b name the same user in any form.
func SameUser(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// ParseUserID parses a user id, accepting both the canonical and compact forms.
func ParseUserID(id string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(id))
}
