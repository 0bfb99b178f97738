package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/zaqqye/fiche_backend_v1/internal/mailer"
	"github.com/zaqqye/fiche_backend_v1/internal/models"
	"github.com/zaqqye/fiche_backend_v1/internal/store"
	"github.com/zaqqye/fiche_backend_v1/internal/utils"
)

const tokenIssuer = "fiche_backend_v1"

type AuthStore interface {
	store.OperatorStore
	store.InviteStore
	store.TokenStore
}

type AuthConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration
	// PublicURL is where reset links point to.
	PublicURL string
}

type Claims struct {
	OperatorID string `json:"operator_id"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
}

type AuthEvent string

const (
	AuthSignedIn         AuthEvent = "signed_in"
	AuthSignedUp         AuthEvent = "signed_up"
	AuthSignedOut        AuthEvent = "signed_out"
	AuthPasswordRecovery AuthEvent = "password_recovery"
)

type AuthStateChange struct {
	Event      AuthEvent `json:"event"`
	OperatorID string    `json:"operator_id"`
	Email      string    `json:"email"`
	At         time.Time `json:"at"`
}

type AuthListener func(AuthStateChange)

// AuthService owns operator credentials, sessions and the allow-list.
type AuthService struct {
	Store  AuthStore
	Mailer mailer.Mailer
	Config AuthConfig
	Now    func() time.Time

	mu           sync.RWMutex
	listeners    map[int]AuthListener
	nextListener int
}

func NewAuthService(st AuthStore, m mailer.Mailer, cfg AuthConfig) *AuthService {
	return &AuthService{Store: st, Mailer: m, Config: cfg}
}

func (a *AuthService) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

// OnAuthStateChange registers a listener called synchronously after each
// credential event. The returned func removes it.
func (a *AuthService) OnAuthStateChange(l AuthListener) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listeners == nil {
		a.listeners = map[int]AuthListener{}
	}
	id := a.nextListener
	a.nextListener++
	a.listeners[id] = l
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

func (a *AuthService) emit(ev AuthEvent, op *models.Operator) {
	change := AuthStateChange{Event: ev, OperatorID: op.ID, Email: op.Email, At: a.now()}
	a.mu.RLock()
	ids := make([]int, 0, len(a.listeners))
	for id := range a.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]AuthListener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, a.listeners[id])
	}
	a.mu.RUnlock()
	for _, l := range ls {
		l(change)
	}
}

// LogAuthEvent is a listener writing every credential event to the log.
func LogAuthEvent(ch AuthStateChange) {
	log.WithFields(log.Fields{
		"prefix":      "auth",
		"event":       ch.Event,
		"operator_id": ch.OperatorID,
	}).Info("auth state changed")
}

func (a *AuthService) IsInvited(ctx context.Context, email string) (bool, error) {
	return a.Store.InviteExists(ctx, NormalizeEmail(email))
}

func (a *AuthService) SignUp(ctx context.Context, email, password string) (*models.Operator, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !utils.PasswordLongEnough(password) {
		return nil, ErrWeakPassword
	}
	if utils.PasswordTooLong(password) {
		return nil, ErrPasswordTooLong
	}
	invited, err := a.Store.InviteExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check invite: %w", err)
	}
	if !invited {
		return nil, ErrNotInvited
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	op := &models.Operator{Email: email, Password: hashed, Active: true}
	if err := a.Store.CreateOperator(ctx, op); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("create operator: %w", err)
	}
	a.emit(AuthSignedUp, op)
	return op, nil
}

func (a *AuthService) SignIn(ctx context.Context, email, password string) (TokenPair, *models.Operator, error) {
	op, err := a.Store.FindOperatorByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, err
	}
	if !op.Active || !utils.CheckPassword(op.Password, password) {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	pair, err := a.issueTokens(ctx, op, uuid.NewString())
	if err != nil {
		return TokenPair{}, nil, err
	}
	a.emit(AuthSignedIn, op)
	return pair, op, nil
}

// issueTokens signs a new pair; jti identifies the refresh token.
func (a *AuthService) issueTokens(ctx context.Context, op *models.Operator, jti string) (TokenPair, error) {
	now := a.now()
	acl := Claims{
		OperatorID: op.ID,
		Email:      op.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.Config.AccessTTL)),
			Subject:   op.ID,
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, acl).SignedString([]byte(a.Config.AccessSecret))
	if err != nil {
		return TokenPair{}, err
	}

	rcl := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.Config.RefreshTTL)),
		Subject:   op.ID,
		ID:        jti,
	}
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, rcl).SignedString([]byte(a.Config.RefreshSecret))
	if err != nil {
		return TokenPair{}, err
	}

	rec := &models.RefreshToken{
		TokenID:    jti,
		OperatorID: op.ID,
		TokenHash:  utils.SHA256Hex(refresh),
		ExpiresAt:  now.Add(a.Config.RefreshTTL),
	}
	if err := a.Store.CreateRefreshToken(ctx, rec); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		TokenType:        "Bearer",
		ExpiresIn:        int(a.Config.AccessTTL.Seconds()),
		RefreshToken:     refresh,
		RefreshExpiresIn: int(a.Config.RefreshTTL.Seconds()),
	}, nil
}

func (a *AuthService) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
}

// Refresh rotates a refresh token: the presented one is revoked, then
// replaced.
func (a *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := a.parser().ParseWithClaims(refreshToken, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(a.Config.RefreshSecret), nil
	})
	if err != nil || !tok.Valid {
		return TokenPair{}, ErrInvalidToken
	}

	rec, err := a.Store.FindRefreshToken(ctx, utils.SHA256Hex(refreshToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	if rec.RevokedAt != nil || a.now().After(rec.ExpiresAt) {
		return TokenPair{}, ErrInvalidToken
	}
	op, err := a.Store.FindOperatorByID(ctx, rec.OperatorID)
	if err != nil || !op.Active {
		return TokenPair{}, ErrInvalidToken
	}

	// Only one concurrent refresh of a token gets past the revoke.
	jti := uuid.NewString()
	if err := a.Store.RevokeRefreshToken(ctx, rec.ID, &jti); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	pair, err := a.issueTokens(ctx, op, jti)
	if err != nil {
		log.WithError(err).WithField("operator_id", op.ID).Error("refresh token revoked but no replacement issued")
		return TokenPair{}, err
	}
	return pair, nil
}

// Authenticate turns a bearer access token into a session.
func (a *AuthService) Authenticate(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}
	claims := &Claims{}
	tok, err := a.parser().ParseWithClaims(accessToken, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(a.Config.AccessSecret), nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrUnauthenticated
	}
	op, err := a.Store.FindOperatorByID(ctx, claims.OperatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !op.Active {
		return nil, ErrUnauthenticated
	}
	sess := &Session{OperatorID: op.ID, Email: op.Email}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return sess, nil
}

func (a *AuthService) Me(ctx context.Context, sess *Session) (*models.Operator, error) {
	if err := RequireSession(sess); err != nil {
		return nil, err
	}
	return a.Store.FindOperatorByID(ctx, sess.OperatorID)
}

// SignOut revokes the given refresh token, or every token of the operator
// when all is set. Access tokens stay valid until they expire.
func (a *AuthService) SignOut(ctx context.Context, sess *Session, refreshToken string, all bool) error {
	if err := RequireSession(sess); err != nil {
		return err
	}
	if refreshToken != "" {
		rec, err := a.Store.FindRefreshToken(ctx, utils.SHA256Hex(refreshToken))
		switch {
		case err == nil && rec.OperatorID == sess.OperatorID:
			if err := a.Store.RevokeRefreshToken(ctx, rec.ID, nil); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return err
		}
	}
	if all {
		if err := a.Store.RevokeOperatorTokens(ctx, sess.OperatorID); err != nil {
			return err
		}
	}
	a.emit(AuthSignedOut, &models.Operator{ID: sess.OperatorID, Email: sess.Email})
	return nil
}

// RequestPasswordReset mails a single-use reset link. Unknown emails are
// silently ignored so callers cannot probe for accounts.
func (a *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	op, err := a.Store.FindOperatorByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	token, err := utils.RandomToken(32)
	if err != nil {
		return err
	}
	rec := &models.PasswordReset{
		OperatorID: op.ID,
		TokenHash:  utils.SHA256Hex(token),
		ExpiresAt:  a.now().Add(a.Config.ResetTTL),
	}
	if err := a.Store.CreatePasswordReset(ctx, rec); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link, err := resetLink(a.Config.PublicURL, token)
	if err != nil {
		return err
	}
	if a.Mailer == nil {
		log.WithField("operator_id", op.ID).Warn("no mailer configured, reset link not delivered")
		return nil
	}
	delivery, err := a.Mailer.Send(ctx, mailer.BuildPasswordReset(op.Email, link))
	if err != nil {
		log.WithError(err).WithField("operator_id", op.ID).Error("failed to send reset email")
		return nil
	}
	if !delivery.Sent {
		log.WithField("operator_id", op.ID).Warn("mail relay not configured, reset link not delivered")
	}
	return nil
}

func resetLink(publicURL, token string) (string, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return "", fmt.Errorf("public url: %w", err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	q := u.Query()
	q.Set("reset_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *AuthService) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if !utils.PasswordLongEnough(password) {
		return ErrWeakPassword
	}
	if utils.PasswordTooLong(password) {
		return ErrPasswordTooLong
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	rec, err := a.Store.FindPasswordReset(ctx, utils.SHA256Hex(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if rec.UsedAt != nil || a.now().After(rec.ExpiresAt) {
		return ErrInvalidToken
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := a.Store.UpdateOperatorPassword(ctx, rec.OperatorID, hashed); err != nil {
		return err
	}
	// the token stays usable until the new password is stored
	if err := a.Store.UsePasswordReset(ctx, rec.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if err := a.Store.RevokeOperatorTokens(ctx, rec.OperatorID); err != nil {
		return err
	}
	op, err := a.Store.FindOperatorByID(ctx, rec.OperatorID)
	if err != nil {
		return err
	}
	a.emit(AuthPasswordRecovery, op)
	return nil
}

// Invite adds an email to the operator allow-list.
func (a *AuthService) Invite(ctx context.Context, sess *Session, email string) (*models.OperatorInvite, error) {
	if err := RequireSession(sess); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	exists, err := a.Store.InviteExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check invite: %w", err)
	}
	if exists {
		return nil, ErrAlreadyInvited
	}
	invitedBy := sess.OperatorID
	inv := &models.OperatorInvite{Email: email, InvitedBy: &invitedBy}
	if err := a.Store.CreateInvite(ctx, inv); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrAlreadyInvited
		}
		return nil, fmt.Errorf("create invite: %w", err)
	}
	return inv, nil
}

func (a *AuthService) ListInvites(ctx context.Context, sess *Session) ([]models.OperatorInvite, error) {
	if err := RequireSession(sess); err != nil {
		return nil, err
	}
	return a.Store.ListInvites(ctx)
}
