package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Skills is an ordered list of skill names. It always serialises as a JSON
// array and also accepts the legacy comma-joined string on input.
type Skills []string

// ParseSkills splits a comma-joined list, dropping blanks and repeats
// (case-insensitive) while keeping the first spelling and the order.
func ParseSkills(s string) Skills {
	return normalizeSkills(strings.Split(s, ","))
}

func normalizeSkills(in []string) Skills {
	trimmed := lo.FilterMap(in, func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
	return lo.UniqBy(trimmed, strings.ToLower)
}

func (s Skills) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

func (s *Skills) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = normalizeSkills(list)
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("skills must be an array of strings or a comma-separated string")
	}
	*s = ParseSkills(joined)
	return nil
}

// Profile is the public view of a user. It never carries credentials.
type Profile struct {
	ID                uuid.UUID `json:"_id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	Location          string    `json:"location"`
	SkillsOffered     Skills    `json:"skillsOffered"`
	SkillsWanted      Skills    `json:"skillsWanted"`
	Availability      string    `json:"availability"`
	ProfileVisibility string    `json:"profileVisibility"`
	IsActive          bool      `json:"isActive"`
	AverageRating     float64   `json:"averageRating"`
	TotalRatings      int       `json:"totalRatings"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// User is a stored account.
type User struct {
	Profile
	PasswordHash string `json:"-"`
}

func (u User) Public() Profile {
	return u.Profile
}
