package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkillsUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Skills
	}{
		{"array", `["Go", "Guitar"]`, Skills{"Go", "Guitar"}},
		{"joined_string", `"Go, Guitar ,, cooking"`, Skills{"Go", "Guitar", "cooking"}},
		{"duplicates_keep_first", `["Go", "go", "Rust", "GO"]`, Skills{"Go", "Rust"}},
		{"empty_string", `""`, Skills{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Skills
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("wrong_type", func(t *testing.T) {
		var got Skills
		assert.Error(t, json.Unmarshal([]byte(`42`), &got))
	})
}

func TestSkillsMarshalNil(t *testing.T) {
	p := Profile{Username: "ada"}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"skillsOffered":[]`)
}

func TestUserJSONHidesPassword(t *testing.T) {
	u := User{Profile: Profile{Username: "ada"}, PasswordHash: "$argon2id$secret"}
	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "argon2id")
	assert.Contains(t, string(data), `"username":"ada"`)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     any
		wantErr string
	}{
		{"send_ok", SendMessageRequest{From: "a", To: "b", Content: "hi"}, ""},
		{"send_missing", SendMessageRequest{From: "a", Content: "hi"}, "Missing fields"},
		{"mark_read_missing", MarkReadRequest{UserID: "a"}, "Missing fields"},
		{"register_ok", RegisterRequest{Username: "ada_l", Email: "ada@example.com", Password: "secret1"}, ""},
		{"register_bad_username", RegisterRequest{Username: "ada lovelace", Email: "ada@example.com", Password: "secret1"},
			"Username can only contain letters, numbers, and underscores"},
		{"register_short_password", RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "123"},
			"Password must be at least 6 characters long"},
		{"register_bad_visibility", RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "secret1", ProfileVisibility: "friends"},
			"Profile visibility must be either public or private"},
		{"login_bad_email", LoginRequest{Email: "nope", Password: "x"}, "Please enter a valid email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}
