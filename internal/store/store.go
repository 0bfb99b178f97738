// Package store persists fiches, operators, the operator allow-list and
// auth tokens. Status changes are conditional updates so the lifecycle
// guards hold even when two callers race on the same fiche.
package store

import (
	"context"
	"errors"

	"gorm.io/datatypes"

	"github.com/zaqqye/fiche_backend_v1/internal/lifecycle"
	"github.com/zaqqye/fiche_backend_v1/internal/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateCode  = errors.New("duplicate fiche code")
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrStatusConflict means the row exists but is no longer in the status
	// the caller expected.
	ErrStatusConflict = errors.New("fiche status changed")
)

type ListFilter struct {
	Status lifecycle.Status
	Query  string
}

type FicheStore interface {
	Create(ctx context.Context, f *models.Fiche) error
	FindByID(ctx context.Context, id string) (*models.Fiche, error)
	FindByCode(ctx context.Context, code string) (*models.Fiche, error)
	// List returns fiches newest first.
	List(ctx context.Context, filter ListFilter) ([]models.Fiche, error)
	// Transition moves a fiche only if it is still in t.From. Data replaces
	// the payload when non-nil; it is always cleared when t.To does not
	// retain data.
	Transition(ctx context.Context, id string, t lifecycle.Transition, data datatypes.JSON) error
	// Delete refuses signed fiches with ErrStatusConflict.
	Delete(ctx context.Context, id string) error
}

type OperatorStore interface {
	CreateOperator(ctx context.Context, op *models.Operator) error
	FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
	FindOperatorByID(ctx context.Context, id string) (*models.Operator, error)
	UpdateOperatorPassword(ctx context.Context, id, hash string) error
}

type InviteStore interface {
	InviteExists(ctx context.Context, email string) (bool, error)
	CreateInvite(ctx context.Context, inv *models.OperatorInvite) error
	ListInvites(ctx context.Context) ([]models.OperatorInvite, error)
}

type TokenStore interface {
	CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, hash string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id uint, replacedBy *string) error
	RevokeOperatorTokens(ctx context.Context, operatorID string) error
	CreatePasswordReset(ctx context.Context, pr *models.PasswordReset) error
	FindPasswordReset(ctx context.Context, hash string) (*models.PasswordReset, error)
	// UsePasswordReset marks the reset consumed; a second call fails with
	// ErrNotFound.
	UsePasswordReset(ctx context.Context, id uint) error
}

// Store is everything the service layer needs.
type Store interface {
	FicheStore
	OperatorStore
	InviteStore
	TokenStore
}
