package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/relay"
	"github.com/johndosdos/skillxchange/internal/store"
)

// Notifier pushes a persisted message to the participants' live connections.
type Notifier interface {
	Notify(ctx context.Context, msg model.Message)
}

// SendMessage persists a message and then lets connected clients know. The
// relay never stores it a second time.
func SendMessage(messages store.Messages, notifier Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req model.SendMessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := model.Validate(req); err != nil {
			writeError(w, r, err)
			return
		}

		msg, err := messages.Append(ctx, req.From, req.To, relay.CleanContent(req.Content))
		if err != nil {
			writeError(w, r, err)
			return
		}

		if notifier != nil {
			notifier.Notify(ctx, msg)
		}

		slog.DebugContext(ctx, "message stored", "id", msg.ID, "from", msg.From, "to", msg.To)
		writeJSON(w, http.StatusOK, envelope{"success": true, "message": msg})
	}
}

// ListMessages returns the conversation between two users, oldest first.
func ListMessages(messages store.Messages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		found, err := messages.ListBetween(r.Context(), chi.URLParam(r, "userId1"), chi.URLParam(r, "userId2"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, envelope{"success": true, "messages": found})
	}
}

func UnreadCounts(messages store.Messages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userId")
		if _, err := model.ParseUserID(userID); err != nil {
			writeError(w, r, apperr.Validation("Invalid userId"))
			return
		}

		counts, err := messages.UnreadCountsByRecipient(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, envelope{"success": true, "counts": counts})
	}
}

func MarkRead(messages store.Messages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.MarkReadRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := model.Validate(req); err != nil {
			writeError(w, r, err)
			return
		}

		if _, err := messages.MarkRead(r.Context(), req.UserID, req.FromUserID); err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, envelope{"success": true})
	}
}
