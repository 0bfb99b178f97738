package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/zaqqye/fiche_backend_v1/internal/lifecycle"
	"github.com/zaqqye/fiche_backend_v1/internal/metrics"
	"github.com/zaqqye/fiche_backend_v1/internal/models"
	"github.com/zaqqye/fiche_backend_v1/internal/store"
	"github.com/zaqqye/fiche_backend_v1/internal/utils"
)

// GuardianView is all an anonymous code holder ever gets to see.
type GuardianView struct {
	Code   string            `json:"code"`
	Nom    string            `json:"nom"`
	Prenom string            `json:"prenom"`
	Data   lifecycle.Payload `json:"data"`
}

// GuardianService serves the form to whoever holds a valid code. The code
// is the only credential; every refusal is lifecycle.ErrAccessDenied.
type GuardianService struct {
	Store    store.FicheStore
	Metrics  *metrics.Metrics
	Notifier FicheNotifier
	Now      func() time.Time
}

func (g *GuardianService) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *GuardianService) resolve(ctx context.Context, code string) (*models.Fiche, error) {
	code = utils.NormalizeCode(code)
	if !utils.IsValidCode(code) {
		g.Metrics.Lookup(false)
		return nil, lifecycle.ErrInvalidCode
	}
	f, err := g.Store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.Metrics.Lookup(false)
			return nil, lifecycle.ErrInvalidCode
		}
		return nil, err
	}
	if err := lifecycle.GuardianAccess(f.Status); err != nil {
		g.Metrics.Lookup(false)
		return nil, err
	}
	g.Metrics.Lookup(true)
	return f, nil
}

func (g *GuardianService) Lookup(ctx context.Context, code string) (*GuardianView, error) {
	f, err := g.resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	view := &GuardianView{Code: f.Code, Nom: f.Nom, Prenom: f.Prenom}
	p, err := f.Payload()
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p == nil {
		view.Data = lifecycle.Prefill(f.Nom, f.Prenom)
	} else {
		view.Data = *p
	}
	return view, nil
}

// Submit validates and stores the guardian's answers. Nothing is written
// unless validation passes; a fiche completed concurrently yields
// ErrAlreadyCompleted.
func (g *GuardianService) Submit(ctx context.Context, code string, payload lifecycle.Payload) error {
	f, err := g.resolve(ctx, code)
	if err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	payload.StampDate(g.now())

	t, err := lifecycle.Next(f.Status, lifecycle.EventSubmit)
	if err != nil {
		return lifecycle.ErrAlreadyCompleted
	}
	data, err := models.EncodePayload(payload)
	if err != nil {
		return err
	}
	if err := g.Store.Transition(ctx, f.ID, t, datatypes.JSON(data)); err != nil {
		if errors.Is(err, store.ErrStatusConflict) || errors.Is(err, store.ErrNotFound) {
			return lifecycle.ErrAlreadyCompleted
		}
		return err
	}
	g.Metrics.Transition(string(t.From), string(t.To))
	if g.Notifier != nil {
		g.Notifier.FicheChanged(FicheEvent{
			Kind:    FicheTransition,
			FicheID: f.ID,
			Code:    f.Code,
			From:    t.From,
			Status:  t.To,
			At:      g.now(),
		})
	}
	return nil
}
