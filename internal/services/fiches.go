package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zaqqye/fiche_backend_v1/internal/lifecycle"
	"github.com/zaqqye/fiche_backend_v1/internal/mailer"
	"github.com/zaqqye/fiche_backend_v1/internal/metrics"
	"github.com/zaqqye/fiche_backend_v1/internal/models"
	"github.com/zaqqye/fiche_backend_v1/internal/store"
	"github.com/zaqqye/fiche_backend_v1/internal/utils"
)

const defaultCodeAttempts = 5

type FicheEventKind string

const (
	FicheCreated    FicheEventKind = "created"
	FicheTransition FicheEventKind = "transition"
	FicheDeleted    FicheEventKind = "deleted"
)

// FicheEvent is pushed to live consoles. It never carries payload data.
type FicheEvent struct {
	Kind    FicheEventKind   `json:"kind"`
	FicheID string           `json:"fiche_id"`
	Code    string           `json:"code"`
	From    lifecycle.Status `json:"from,omitempty"`
	Status  lifecycle.Status `json:"status,omitempty"`
	At      time.Time        `json:"at"`
}

type FicheNotifier interface {
	FicheChanged(ev FicheEvent)
}

// ConsoleFiche is a fiche as the operator console sees it.
type ConsoleFiche struct {
	models.Fiche
	Actions []lifecycle.Action `json:"actions"`
}

func newConsoleFiche(f models.Fiche) ConsoleFiche {
	return ConsoleFiche{Fiche: f, Actions: lifecycle.AvailableActions(f.Status)}
}

type Invitation struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

type CreateFicheInput struct {
	Nom    string `json:"nom"`
	Prenom string `json:"prenom"`
	Email  string `json:"email"`
}

// FicheService runs every operator action on fiches. Mailer, Metrics and
// Notifier are optional.
type FicheService struct {
	Store           store.FicheStore
	Mailer          mailer.Mailer
	Metrics         *metrics.Metrics
	Notifier        FicheNotifier
	PublicURL       string
	MaxCodeAttempts int
	Now             func() time.Time
	GenerateCode    func(n int) (string, error)
}

func (s *FicheService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *FicheService) notify(kind FicheEventKind, f *models.Fiche, from lifecycle.Status) {
	if s.Notifier == nil {
		return
	}
	ev := FicheEvent{Kind: kind, FicheID: f.ID, Code: f.Code, Status: f.Status, At: s.now()}
	if kind == FicheTransition {
		ev.From = from
	}
	s.Notifier.FicheChanged(ev)
}

// InvitationURL builds the guardian link for a code on top of publicURL.
func InvitationURL(publicURL, code string) (string, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return "", fmt.Errorf("public url: %w", err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *FicheService) invitation(f *models.Fiche) (Invitation, error) {
	link, err := InvitationURL(s.PublicURL, f.Code)
	if err != nil {
		return Invitation{}, err
	}
	return Invitation{Code: f.Code, URL: link}, nil
}

func (s *FicheService) List(ctx context.Context, sess *Session, filter store.ListFilter) ([]ConsoleFiche, error) {
	if err := RequireSession(sess); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	items, err := s.Store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]ConsoleFiche, 0, len(items))
	for _, f := range items {
		out = append(out, newConsoleFiche(f))
	}
	return out, nil
}

func (s *FicheService) Get(ctx context.Context, sess *Session, id string) (*ConsoleFiche, error) {
	if err := RequireSession(sess); err != nil {
		return nil, err
	}
	f, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cf := newConsoleFiche(*f)
	return &cf, nil
}

// Create registers a child and hands back the guardian invitation. A code
// collision triggers a new draw, up to MaxCodeAttempts.
func (s *FicheService) Create(ctx context.Context, sess *Session, in CreateFicheInput) (*ConsoleFiche, Invitation, error) {
	if err := RequireSession(sess); err != nil {
		return nil, Invitation{}, err
	}
	nom := strings.TrimSpace(in.Nom)
	prenom := strings.TrimSpace(in.Prenom)
	email := strings.TrimSpace(in.Email)
	if nom == "" || prenom == "" {
		return nil, Invitation{}, fmt.Errorf("%w: nom and prenom are required", ErrInvalidInput)
	}
	if !ValidEmail(email) {
		return nil, Invitation{}, ErrInvalidEmail
	}

	data, err := models.EncodePayload(lifecycle.Prefill(nom, prenom))
	if err != nil {
		return nil, Invitation{}, err
	}

	generate := s.GenerateCode
	if generate == nil {
		generate = utils.GenerateCode
	}
	attempts := s.MaxCodeAttempts
	if attempts <= 0 {
		attempts = defaultCodeAttempts
	}

	for i := 0; i < attempts; i++ {
		code, err := generate(utils.CodeLength)
		if err != nil {
			return nil, Invitation{}, fmt.Errorf("generate code: %w", err)
		}
		f := &models.Fiche{
			Code:   code,
			Nom:    nom,
			Prenom: prenom,
			Email:  email,
			Status: lifecycle.StatusSent,
			Data:   data,
		}
		err = s.Store.Create(ctx, f)
		if errors.Is(err, store.ErrDuplicateCode) {
			log.WithField("attempt", i+1).Warn("fiche code collision, drawing again")
			continue
		}
		if err != nil {
			return nil, Invitation{}, err
		}

		inv, err := s.invitation(f)
		if err != nil {
			return nil, Invitation{}, err
		}
		s.notify(FicheCreated, f, "")
		cf := newConsoleFiche(*f)
		return &cf, inv, nil
	}
	return nil, Invitation{}, ErrCodeSpaceExhausted
}

// Invitation is only handed out while the guardian can still use it.
func (s *FicheService) Invitation(ctx context.Context, sess *Session, id string) (Invitation, error) {
	if err := RequireSession(sess); err != nil {
		return Invitation{}, err
	}
	f, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return Invitation{}, err
	}
	if !lifecycle.Allows(f.Status, lifecycle.ActionInvitation) {
		return Invitation{}, fmt.Errorf("%w: invitation while %s", lifecycle.ErrInvalidTransition, f.Status)
	}
	return s.invitation(f)
}

// apply runs a transition and records it. The fiche is updated in place.
func (s *FicheService) apply(ctx context.Context, f *models.Fiche, t lifecycle.Transition, payload *lifecycle.Payload) error {
	var data []byte
	if payload != nil {
		encoded, err := models.EncodePayload(*payload)
		if err != nil {
			return err
		}
		data = encoded
	}
	if err := s.Store.Transition(ctx, f.ID, t, data); err != nil {
		return err
	}
	f.Status = t.To
	if !lifecycle.RetainsData(t.To) {
		f.Data = nil
	} else if data != nil {
		f.Data = data
	}
	if t.Changes() {
		s.Metrics.Transition(string(t.From), string(t.To))
		s.notify(FicheTransition, f, t.From)
	}
	return nil
}

// SimulateFill stands in for a guardian submission with canned data.
func (s *FicheService) SimulateFill(ctx context.Context, sess *Session, id string) (*ConsoleFiche, error) {
	if err := RequireSession(sess); err != nil {
		return nil, err
	}
	f, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := lifecycle.Next(f.Status, lifecycle.EventSimulate)
	if err != nil {
		return nil, err
	}
	payload := lifecycle.SimulatedPayload(f.Nom, f.Prenom, s.now())
	if err := s.apply(ctx, f, t, &payload); err != nil {
		return nil, err
	}
	cf := newConsoleFiche(*f)
	return &cf, nil
}

// Print checks the whole batch first, then marks each filled fiche as
// printed one after another. A failure part-way leaves earlier fiches
// printed; printing them again is harmless.
func (s *FicheService) Print(ctx context.Context, sess *Session, ids []string) ([]models.Fiche, error) {
	if err := RequireSession(sess); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	batch := make([]*models.Fiche, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		f, err := s.Store.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fiche %s: %w", id, err)
		}
		if _, _, err := lifecycle.PrintTarget(f.Status); err != nil {
			return nil, fmt.Errorf("fiche %s: %w", id, err)
		}
		batch = append(batch, f)
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: no fiche selected", ErrInvalidInput)
	}

	out := make([]models.Fiche, 0, len(batch))
	for _, f := range batch {
		t, err := lifecycle.Next(f.Status, lifecycle.EventPrint)
		if err != nil {
			return nil, err
		}
		if t.Changes() {
			err := s.apply(ctx, f, t, nil)
			if errors.Is(err, store.ErrStatusConflict) {
				// someone else printed it meanwhile
				current, ferr := s.Store.FindByID(ctx, f.ID)
				if ferr == nil && current.Status == lifecycle.StatusPrinted {
					f, err = current, nil
				}
			}
			if err != nil {
				log.WithFields(log.Fields{"fiche_id": f.ID, "status": f.Status}).WithError(err).Error("failed to mark fiche printed")
				return nil, err
			}
		}
		out = append(out, *f)
	}
	return out, nil
}

// Sign finalizes a printed fiche and erases its payload. Unconfirmed calls
// return the fiche with ErrConfirmationRequired and change nothing.
func (s *FicheService) Sign(ctx context.Context, sess *Session, id string, confirmed bool) (*ConsoleFiche, error) {
	if err := RequireSession(sess); err != nil {
		return nil, err
	}
	f, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := lifecycle.Next(f.Status, lifecycle.EventSign)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		cf := newConsoleFiche(*f)
		return &cf, ErrConfirmationRequired
	}
	if err := s.apply(ctx, f, t, nil); err != nil {
		return nil, err
	}
	cf := newConsoleFiche(*f)
	return &cf, nil
}

// Delete removes a fiche that is not signed, with the same confirmation
// gate as Sign.
func (s *FicheService) Delete(ctx context.Context, sess *Session, id string, confirmed bool) (*ConsoleFiche, error) {
	if err := RequireSession(sess); err != nil {
		return nil, err
	}
	f, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lifecycle.CanDelete(f.Status) {
		return nil, fmt.Errorf("%w: delete while %s", lifecycle.ErrInvalidTransition, f.Status)
	}
	cf := newConsoleFiche(*f)
	if !confirmed {
		return &cf, ErrConfirmationRequired
	}
	if err := s.Store.Delete(ctx, f.ID); err != nil {
		return nil, err
	}
	s.Metrics.Deleted()
	s.notify(FicheDeleted, f, "")
	return &cf, nil
}

// Remind emails the guardian their link again. Without a mail relay the
// returned delivery holds a mailto: link instead.
func (s *FicheService) Remind(ctx context.Context, sess *Session, id string) (mailer.Delivery, error) {
	if err := RequireSession(sess); err != nil {
		return mailer.Delivery{}, err
	}
	f, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return mailer.Delivery{}, err
	}
	if !lifecycle.Allows(f.Status, lifecycle.ActionRemind) {
		return mailer.Delivery{}, fmt.Errorf("%w: remind while %s", lifecycle.ErrInvalidTransition, f.Status)
	}
	inv, err := s.invitation(f)
	if err != nil {
		return mailer.Delivery{}, err
	}
	m := s.Mailer
	if m == nil {
		m = mailer.MailtoMailer{}
	}
	msg := mailer.BuildReminder(mailer.Reminder{
		To:        f.Email,
		Code:      f.Code,
		URL:       inv.URL,
		ChildName: strings.TrimSpace(f.Prenom + " " + f.Nom),
	})
	delivery, err := m.Send(ctx, msg)
	if err != nil {
		return mailer.Delivery{}, fmt.Errorf("send reminder: %w", err)
	}
	channel := "mailto"
	if delivery.Sent {
		channel = "api"
	}
	s.Metrics.Reminder(channel)
	return delivery, nil
}
