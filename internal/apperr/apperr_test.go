package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	dbErr := errors.New("connection refused")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantPublic string
	}{
		{"validation", Validation("Missing fields"), http.StatusBadRequest, "Missing fields"},
		{"not_found", NotFound("User not found"), http.StatusNotFound, "User not found"},
		{"authorization", Authorization("User profile is private"), http.StatusForbidden, "User profile is private"},
		{"authentication", Authentication("Invalid credentials"), http.StatusUnauthorized, "Invalid credentials"},
		{"persistence", Persistence("Error sending message", dbErr), http.StatusInternalServerError, "Error sending message"},
		{"wrapped", fmt.Errorf("handler: %w", NotFound("gone")), http.StatusNotFound, "gone"},
		{"plain", dbErr, http.StatusInternalServerError, "Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, Status(tt.err))
			assert.Equal(t, tt.wantPublic, Public(tt.err))
		})
	}
}

func TestPersistenceKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Persistence("Error sending message", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, KindPersistence))
	assert.Equal(t, "Error sending message: disk full", err.Error())
	assert.Equal(t, "persistence", KindOf(err).String())
}
