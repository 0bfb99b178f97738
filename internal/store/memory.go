package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/zaqqye/fiche_backend_v1/internal/lifecycle"
	"github.com/zaqqye/fiche_backend_v1/internal/models"
)

// Memory is a process-local Store used for development and tests. Values
// are copied on the way in and out so callers never share state with it.
type Memory struct {
	mu        sync.Mutex
	now       func() time.Time
	fiches    map[string]models.Fiche
	operators map[string]models.Operator
	invites   []models.OperatorInvite
	refresh   []models.RefreshToken
	resets    []models.PasswordReset
	seq       uint
}

func NewMemory() *Memory {
	return &Memory{
		now:       func() time.Time { return time.Now().UTC() },
		fiches:    map[string]models.Fiche{},
		operators: map[string]models.Operator{},
	}
}

// SetClock overrides the timestamp source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) nextID() uint {
	m.seq++
	return m.seq
}

func (m *Memory) Create(ctx context.Context, f *models.Fiche) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.fiches {
		if existing.Code == f.Code {
			return ErrDuplicateCode
		}
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := m.now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	m.fiches[f.ID] = f.Clone()
	return nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (*models.Fiche, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fiches[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := f.Clone()
	return &out, nil
}

func (m *Memory) FindByCode(ctx context.Context, code string) (*models.Fiche, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.fiches {
		if f.Code == code {
			out := f.Clone()
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) List(ctx context.Context, filter ListFilter) ([]models.Fiche, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text := strings.ToLower(strings.TrimSpace(filter.Query))
	items := make([]models.Fiche, 0, len(m.fiches))
	for _, f := range m.fiches {
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if text != "" && !matches(f, text) {
			continue
		}
		items = append(items, f.Clone())
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func matches(f models.Fiche, text string) bool {
	return strings.Contains(strings.ToLower(f.Nom), text) ||
		strings.Contains(strings.ToLower(f.Prenom), text) ||
		strings.Contains(strings.ToLower(f.Email), text) ||
		strings.EqualFold(f.Code, text)
}

func (m *Memory) Transition(ctx context.Context, id string, t lifecycle.Transition, data datatypes.JSON) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fiches[id]
	if !ok {
		return ErrNotFound
	}
	if f.Status != t.From {
		return ErrStatusConflict
	}
	f.Status = t.To
	if !lifecycle.RetainsData(t.To) {
		f.Data = nil
	} else if data != nil {
		f.Data = append(datatypes.JSON(nil), data...)
	}
	f.UpdatedAt = m.now()
	m.fiches[id] = f
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fiches[id]
	if !ok {
		return ErrNotFound
	}
	if !lifecycle.CanDelete(f.Status) {
		return ErrStatusConflict
	}
	delete(m.fiches, id)
	return nil
}

func (m *Memory) CreateOperator(ctx context.Context, op *models.Operator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.operators {
		if existing.Email == op.Email {
			return ErrDuplicateEmail
		}
	}
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	now := m.now()
	op.CreatedAt, op.UpdatedAt = now, now
	m.operators[op.ID] = *op
	return nil
}

func (m *Memory) FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.operators {
		if op.Email == email {
			out := op
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindOperatorByID(ctx context.Context, id string) (*models.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operators[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &op, nil
}

func (m *Memory) UpdateOperatorPassword(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operators[id]
	if !ok {
		return ErrNotFound
	}
	op.Password = hash
	op.UpdatedAt = m.now()
	m.operators[id] = op
	return nil
}

func (m *Memory) InviteExists(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invites {
		if inv.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CreateInvite(ctx context.Context, inv *models.OperatorInvite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invites {
		if existing.Email == inv.Email {
			return ErrDuplicateEmail
		}
	}
	inv.ID = m.nextID()
	inv.CreatedAt = m.now()
	m.invites = append(m.invites, *inv)
	return nil
}

func (m *Memory) ListInvites(ctx context.Context) ([]models.OperatorInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.OperatorInvite, len(m.invites))
	for i := range m.invites {
		out[len(out)-1-i] = m.invites[i]
	}
	return out, nil
}

func (m *Memory) CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt.ID = m.nextID()
	rt.CreatedAt = m.now()
	m.refresh = append(m.refresh, *rt)
	return nil
}

func (m *Memory) FindRefreshToken(ctx context.Context, hash string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.refresh {
		if rt.TokenHash == hash {
			out := rt
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) RevokeRefreshToken(ctx context.Context, id uint, replacedBy *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.refresh {
		if m.refresh[i].ID == id && m.refresh[i].RevokedAt == nil {
			now := m.now()
			m.refresh[i].RevokedAt = &now
			m.refresh[i].ReplacedByTokenID = replacedBy
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) RevokeOperatorTokens(ctx context.Context, operatorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for i := range m.refresh {
		if m.refresh[i].OperatorID == operatorID && m.refresh[i].RevokedAt == nil {
			m.refresh[i].RevokedAt = &now
		}
	}
	return nil
}

func (m *Memory) CreatePasswordReset(ctx context.Context, pr *models.PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr.ID = m.nextID()
	pr.CreatedAt = m.now()
	m.resets = append(m.resets, *pr)
	return nil
}

func (m *Memory) FindPasswordReset(ctx context.Context, hash string) (*models.PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pr := range m.resets {
		if pr.TokenHash == hash {
			out := pr
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UsePasswordReset(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.resets {
		if m.resets[i].ID == id && m.resets[i].UsedAt == nil {
			now := m.now()
			m.resets[i].UsedAt = &now
			return nil
		}
	}
	return ErrNotFound
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*GormStore)(nil)
)
