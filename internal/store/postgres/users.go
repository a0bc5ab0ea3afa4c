package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/lo"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/store"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, location,
	skills_offered, skills_wanted, availability, profile_visibility, is_active,
	average_rating, total_ratings, created_at, updated_at`

const createUser = `-- name: CreateUser :one
INSERT INTO users (id, username, email, password_hash, first_name, last_name, location,
	skills_offered, skills_wanted, availability, profile_visibility, is_active,
	average_rating, total_ratings, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true, 0, 0, $12, $12)
RETURNING ` + userColumns

const getUserByID = `-- name: GetUserById :one
SELECT ` + userColumns + ` FROM users WHERE id = $1`

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

const listUsersByIDs = `-- name: ListUsersByIDs :many
SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) ORDER BY username`

const listActiveUsers = `-- name: ListActiveUsers :many
SELECT ` + userColumns + ` FROM users WHERE is_active ORDER BY created_at`

type userRow struct {
	ID                pgtype.UUID `db:"id"`
	Username          string      `db:"username"`
	Email             string      `db:"email"`
	PasswordHash      string      `db:"password_hash"`
	FirstName         string      `db:"first_name"`
	LastName          string      `db:"last_name"`
	Location          string      `db:"location"`
	SkillsOffered     []string    `db:"skills_offered"`
	SkillsWanted      []string    `db:"skills_wanted"`
	Availability      string      `db:"availability"`
	ProfileVisibility string      `db:"profile_visibility"`
	IsActive          bool        `db:"is_active"`
	AverageRating     float64     `db:"average_rating"`
	TotalRatings      int32       `db:"total_ratings"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

func (r userRow) toModel() model.User {
	return model.User{
		Profile: model.Profile{
			ID:                r.ID.Bytes,
			Username:          r.Username,
			Email:             r.Email,
			FirstName:         r.FirstName,
			LastName:          r.LastName,
			Location:          r.Location,
			SkillsOffered:     model.Skills(r.SkillsOffered),
			SkillsWanted:      model.Skills(r.SkillsWanted),
			Availability:      r.Availability,
			ProfileVisibility: r.ProfileVisibility,
			IsActive:          r.IsActive,
			AverageRating:     r.AverageRating,
			TotalRatings:      int(r.TotalRatings),
			CreatedAt:         r.CreatedAt.UTC(),
			UpdatedAt:         r.UpdatedAt.UTC(),
		},
		PasswordHash: r.PasswordHash,
	}
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.ProfileVisibility == "" {
		u.ProfileVisibility = model.VisibilityPublic
	}

	rows, err := s.pool.Query(ctx, createUser,
		pgUUID(u.ID),
		strings.TrimSpace(u.Username),
		strings.ToLower(strings.TrimSpace(u.Email)),
		u.PasswordHash,
		u.FirstName,
		u.LastName,
		u.Location,
		lo.Ternary(u.SkillsOffered == nil, []string{}, []string(u.SkillsOffered)),
		lo.Ternary(u.SkillsWanted == nil, []string{}, []string(u.SkillsWanted)),
		u.Availability,
		u.ProfileVisibility,
		store.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, apperr.Validation("User already exists with this email or username")
		}
		return model.User{}, apperr.Persistence("Error creating user", err)
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[userRow])
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, apperr.Validation("User already exists with this email or username")
		}
		return model.User{}, apperr.Persistence("Error creating user", err)
	}

	return row.toModel(), nil
}

func (s *Store) getOne(ctx context.Context, query string, arg any) (model.User, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return model.User{}, apperr.Persistence("Error fetching user", err)
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[userRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return model.User{}, apperr.Persistence("Error fetching user", err)
	}

	return row.toModel(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return s.getOne(ctx, getUserByID, pgUUID(id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.getOne(ctx, getUserByEmail, strings.TrimSpace(email))
}

func (s *Store) ListUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}

	return s.list(ctx, listUsersByIDs, lo.Map(ids, func(id uuid.UUID, _ int) pgtype.UUID { return pgUUID(id) }))
}

func (s *Store) ListActiveUsers(ctx context.Context) ([]model.User, error) {
	return s.list(ctx, listActiveUsers)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Persistence("Error fetching users", err)
	}

	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[userRow])
	if err != nil {
		return nil, apperr.Persistence("Error fetching users", err)
	}

	return lo.Map(found, func(r userRow, _ int) model.User { return r.toModel() }), nil
}
