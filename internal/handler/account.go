package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/auth"
	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/store"
)

// Register creates an account and returns a token for it.
func Register(users store.Users, tokens auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req model.RegisterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := model.Validate(req); err != nil {
			writeError(w, r, err)
			return
		}

		hashedPw, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}

		user, err := users.CreateUser(ctx, model.User{
			Profile: model.Profile{
				Username:          req.Username,
				Email:             req.Email,
				FirstName:         req.FirstName,
				LastName:          req.LastName,
				Location:          req.Location,
				SkillsOffered:     req.SkillsOffered,
				SkillsWanted:      req.SkillsWanted,
				Availability:      req.Availability,
				ProfileVisibility: req.ProfileVisibility,
			},
			PasswordHash: hashedPw,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		token, err := tokens.MakeJWT(user.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		slog.InfoContext(ctx, "user signed up",
			slog.String("username", user.Username))

		writeJSON(w, http.StatusCreated, envelope{
			"success": true,
			"message": "User registered successfully",
			"token":   token,
			"user":    user.Public(),
		})
	}
}

func Login(users store.Users, tokens auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req model.LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := model.Validate(req); err != nil {
			writeError(w, r, err)
			return
		}

		user, err := users.GetUserByEmail(ctx, req.Email)
		if apperr.Is(err, apperr.KindNotFound) {
			writeError(w, r, apperr.Authentication("Invalid credentials"))
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		if !user.IsActive {
			writeError(w, r, apperr.Validation("Account is deactivated"))
			return
		}

		ok, err := auth.CheckPasswordHash(req.Password, user.PasswordHash)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ok {
			writeError(w, r, apperr.Authentication("Invalid credentials"))
			return
		}

		token, err := tokens.MakeJWT(user.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		slog.InfoContext(ctx, "user logged in",
			slog.String("username", user.Username))

		writeJSON(w, http.StatusOK, envelope{
			"success": true,
			"message": "Login successful",
			"token":   token,
			"user":    user.Public(),
		})
	}
}

// GetUser returns a public profile. Private and deactivated accounts are
// not shown.
func GetUser(users store.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := model.ParseUserID(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, apperr.Validation("Invalid user ID format"))
			return
		}

		user, err := users.GetUserByID(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		switch {
		case !user.IsActive:
			writeError(w, r, apperr.NotFound("User account is deactivated"))
			return
		case user.ProfileVisibility == model.VisibilityPrivate:
			writeError(w, r, apperr.Authorization("User profile is private"))
			return
		}

		writeJSON(w, http.StatusOK, envelope{
			"success": true,
			"message": "User data retrieved successfully",
			"user":    user.Public(),
		})
	}
}

func ListUsers(users store.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := users.ListActiveUsers(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, envelope{
			"success": true,
			"message": "All users retrieved successfully",
			"users":   lo.Map(active, func(u model.User, _ int) model.Profile { return u.Public() }),
		})
	}
}
