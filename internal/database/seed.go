package database

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/zaqqye/fiche_backend_v1/internal/config"
	"github.com/zaqqye/fiche_backend_v1/internal/models"
	"github.com/zaqqye/fiche_backend_v1/internal/store"
	"github.com/zaqqye/fiche_backend_v1/internal/utils"
)

type seedStore interface {
	store.OperatorStore
	store.InviteStore
}

// SeedAdmin puts ADMIN_EMAIL on the allow-list and creates its account
// when both ADMIN_EMAIL and ADMIN_PASSWORD are set. Existing rows are left
// alone, so it is safe on every start.
func SeedAdmin(ctx context.Context, st seedStore, cfg *config.Config) error {
	email := cfg.AdminEmail
	if email == "" || cfg.AdminPassword == "" {
		return nil
	}

	invited, err := st.InviteExists(ctx, email)
	if err != nil {
		return err
	}
	if !invited {
		if err := st.CreateInvite(ctx, &models.OperatorInvite{Email: email}); err != nil && !errors.Is(err, store.ErrDuplicateEmail) {
			return err
		}
	}

	if _, err := st.FindOperatorByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if !utils.PasswordLongEnough(cfg.AdminPassword) {
		log.WithField("email", email).Warn("ADMIN_PASSWORD too short, initial operator not created")
		return nil
	}
	if utils.PasswordTooLong(cfg.AdminPassword) {
		log.WithField("email", email).Warn("ADMIN_PASSWORD longer than 72 bytes, initial operator not created")
		return nil
	}
	hashed, err := utils.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	op := &models.Operator{Email: email, Password: hashed, Active: true}
	if err := st.CreateOperator(ctx, op); err != nil && !errors.Is(err, store.ErrDuplicateEmail) {
		return err
	}
	log.WithField("email", email).Info("seeded initial operator")
	return nil
}
