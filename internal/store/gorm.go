package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/zaqqye/fiche_backend_v1/internal/lifecycle"
	"github.com/zaqqye/fiche_backend_v1/internal/models"
)

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) Create(ctx context.Context, f *models.Fiche) error {
	if err := s.DB.WithContext(ctx).Create(f).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

func (s *GormStore) FindByID(ctx context.Context, id string) (*models.Fiche, error) {
	var f models.Fiche
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

func (s *GormStore) FindByCode(ctx context.Context, code string) (*models.Fiche, error) {
	var f models.Fiche
	if err := s.DB.WithContext(ctx).Where("code = ?", code).First(&f).Error; err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

func (s *GormStore) List(ctx context.Context, filter ListFilter) ([]models.Fiche, error) {
	q := s.DB.WithContext(ctx).Model(&models.Fiche{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if text := strings.TrimSpace(filter.Query); text != "" {
		like := "%" + escapeLike(text) + "%"
		q = q.Where("nom ILIKE ? OR prenom ILIKE ? OR email ILIKE ? OR code = ?", like, like, like, strings.ToUpper(text))
	}
	var items []models.Fiche
	if err := q.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike makes user text match literally inside a LIKE pattern.
func escapeLike(text string) string {
	return likeEscaper.Replace(text)
}

func (s *GormStore) Transition(ctx context.Context, id string, t lifecycle.Transition, data datatypes.JSON) error {
	updates := map[string]any{"status": t.To}
	if !lifecycle.RetainsData(t.To) {
		updates["data"] = nil
	} else if data != nil {
		updates["data"] = data
	}
	res := s.DB.WithContext(ctx).Model(&models.Fiche{}).
		Where("id = ? AND status = ?", id, t.From).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).
		Where("id = ? AND status <> ?", id, lifecycle.StatusSigned).
		Delete(&models.Fiche{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

func (s *GormStore) missOrConflict(ctx context.Context, id string) error {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Fiche{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStatusConflict
}

func (s *GormStore) CreateOperator(ctx context.Context, op *models.Operator) error {
	if err := s.DB.WithContext(ctx).Create(op).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *GormStore) FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	var op models.Operator
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&op).Error; err != nil {
		return nil, notFound(err)
	}
	return &op, nil
}

func (s *GormStore) FindOperatorByID(ctx context.Context, id string) (*models.Operator, error) {
	var op models.Operator
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&op).Error; err != nil {
		return nil, notFound(err)
	}
	return &op, nil
}

func (s *GormStore) UpdateOperatorPassword(ctx context.Context, id, hash string) error {
	res := s.DB.WithContext(ctx).Model(&models.Operator{}).Where("id = ?", id).Update("password", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) InviteExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.OperatorInvite{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) CreateInvite(ctx context.Context, inv *models.OperatorInvite) error {
	if err := s.DB.WithContext(ctx).Create(inv).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *GormStore) ListInvites(ctx context.Context) ([]models.OperatorInvite, error) {
	var items []models.OperatorInvite
	if err := s.DB.WithContext(ctx).Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *GormStore) CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) error {
	return s.DB.WithContext(ctx).Create(rt).Error
}

func (s *GormStore) FindRefreshToken(ctx context.Context, hash string) (*models.RefreshToken, error) {
	var rec models.RefreshToken
	if err := s.DB.WithContext(ctx).Where("token_hash = ?", hash).First(&rec).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// RevokeRefreshToken returns ErrNotFound when the token is unknown or
// already revoked.
func (s *GormStore) RevokeRefreshToken(ctx context.Context, id uint, replacedBy *string) error {
	now := time.Now().UTC()
	res := s.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{
			"revoked_at":           &now,
			"replaced_by_token_id": replacedBy,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) RevokeOperatorTokens(ctx context.Context, operatorID string) error {
	now := time.Now().UTC()
	return s.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("operator_id = ? AND revoked_at IS NULL", operatorID).
		Update("revoked_at", &now).Error
}

func (s *GormStore) CreatePasswordReset(ctx context.Context, pr *models.PasswordReset) error {
	return s.DB.WithContext(ctx).Create(pr).Error
}

func (s *GormStore) FindPasswordReset(ctx context.Context, hash string) (*models.PasswordReset, error) {
	var rec models.PasswordReset
	if err := s.DB.WithContext(ctx).Where("token_hash = ?", hash).First(&rec).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (s *GormStore) UsePasswordReset(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	res := s.DB.WithContext(ctx).Model(&models.PasswordReset{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
