package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/skillxchange/internal/model"
)

type ContactLister interface {
	Contacts(ctx context.Context, userID string) ([]model.Profile, error)
}

func ListContacts(contacts ContactLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := contacts.Contacts(r.Context(), chi.URLParam(r, "userId"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, envelope{"success": true, "users": users})
	}
}
