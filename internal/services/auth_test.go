package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/zaqqye/fiche_backend_v1/internal/models"
	"github.com/zaqqye/fiche_backend_v1/internal/store"
)

type AuthServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	clock  time.Time
	store  *store.Memory
	mailer *recordingMailer
	auth   *AuthService
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}

func (s *AuthServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s.store = store.NewMemory()
	s.mailer = &recordingMailer{}
	s.auth = NewAuthService(s.store, s.mailer, AuthConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		ResetTTL:      time.Hour,
		PublicURL:     "https://fiches.example.org",
	})
	s.auth.Now = func() time.Time { return s.clock }
}

func (s *AuthServiceTestSuite) invite(email string) {
	s.Require().NoError(s.store.CreateInvite(s.ctx, &models.OperatorInvite{Email: email}))
}

func (s *AuthServiceTestSuite) signUp(email, password string) *models.Operator {
	s.invite(email)
	op, err := s.auth.SignUp(s.ctx, email, password)
	s.Require().NoError(err)
	return op
}

func (s *AuthServiceTestSuite) TestSignUpRequiresInvite() {
	_, err := s.auth.SignUp(s.ctx, "stranger@example.org", "secret1")
	s.ErrorIs(err, ErrNotInvited)

	s.invite("guest@example.org")
	op, err := s.auth.SignUp(s.ctx, "  Guest@Example.org ", "secret1")
	s.Require().NoError(err)
	s.Equal("guest@example.org", op.Email)
	s.NotEqual("secret1", op.Password)

	_, err = s.auth.SignUp(s.ctx, "guest@example.org", "secret2")
	s.ErrorIs(err, ErrAccountExists)
}

func (s *AuthServiceTestSuite) TestSignUpValidation() {
	s.invite("guest@example.org")

	_, err := s.auth.SignUp(s.ctx, "guest@example.org", "12345")
	s.ErrorIs(err, ErrWeakPassword)

	_, err = s.auth.SignUp(s.ctx, "not-an-email", "secret1")
	s.ErrorIs(err, ErrInvalidEmail)

	_, err = s.auth.SignUp(s.ctx, "guest@example.org", strings.Repeat("a", 80))
	s.ErrorIs(err, ErrPasswordTooLong)
	_, err = s.auth.SignUp(s.ctx, "guest@example.org", strings.Repeat("é", 37))
	s.ErrorIs(err, ErrPasswordTooLong)
}

func (s *AuthServiceTestSuite) TestSignInAndAuthenticate() {
	op := s.signUp("op@example.org", "secret1")

	pair, got, err := s.auth.SignIn(s.ctx, "OP@example.org", "secret1")
	s.Require().NoError(err)
	s.Equal(op.ID, got.ID)
	s.Equal("Bearer", pair.TokenType)
	s.Equal(900, pair.ExpiresIn)

	sess, err := s.auth.Authenticate(s.ctx, pair.AccessToken)
	s.Require().NoError(err)
	s.Equal(op.ID, sess.OperatorID)
	s.WithinDuration(s.clock.Add(15*time.Minute), sess.ExpiresAt, time.Second)

	_, _, err = s.auth.SignIn(s.ctx, "op@example.org", "wrong-pass")
	s.ErrorIs(err, ErrInvalidCredentials)
	_, _, err = s.auth.SignIn(s.ctx, "nobody@example.org", "secret1")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *AuthServiceTestSuite) TestAuthenticateRejectsBadTokens() {
	s.signUp("op@example.org", "secret1")
	pair, _, err := s.auth.SignIn(s.ctx, "op@example.org", "secret1")
	s.Require().NoError(err)

	_, err = s.auth.Authenticate(s.ctx, "")
	s.ErrorIs(err, ErrUnauthenticated)
	_, err = s.auth.Authenticate(s.ctx, pair.RefreshToken)
	s.ErrorIs(err, ErrUnauthenticated)

	s.clock = s.clock.Add(16 * time.Minute)
	_, err = s.auth.Authenticate(s.ctx, pair.AccessToken)
	s.ErrorIs(err, ErrUnauthenticated)
}

func (s *AuthServiceTestSuite) TestRefreshRotates() {
	s.signUp("op@example.org", "secret1")
	first, _, err := s.auth.SignIn(s.ctx, "op@example.org", "secret1")
	s.Require().NoError(err)

	second, err := s.auth.Refresh(s.ctx, first.RefreshToken)
	s.Require().NoError(err)
	s.NotEqual(first.RefreshToken, second.RefreshToken)

	_, err = s.auth.Refresh(s.ctx, first.RefreshToken)
	s.ErrorIs(err, ErrInvalidToken)

	_, err = s.auth.Refresh(s.ctx, second.RefreshToken)
	s.NoError(err)
}

func (s *AuthServiceTestSuite) TestConcurrentRefreshHasOneWinner() {
	s.signUp("op@example.org", "secret1")
	pair, _, err := s.auth.SignIn(s.ctx, "op@example.org", "secret1")
	s.Require().NoError(err)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		denied  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.auth.Refresh(s.ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, ErrInvalidToken):
				denied++
			}
		}()
	}
	wg.Wait()
	s.Equal(1, granted)
	s.Equal(workers-1, denied)
}

func (s *AuthServiceTestSuite) TestSignOutTwiceWithSameToken() {
	op := s.signUp("op@example.org", "secret1")
	pair, _, err := s.auth.SignIn(s.ctx, "op@example.org", "secret1")
	s.Require().NoError(err)

	sess := &Session{OperatorID: op.ID, Email: op.Email}
	s.NoError(s.auth.SignOut(s.ctx, sess, pair.RefreshToken, false))
	s.NoError(s.auth.SignOut(s.ctx, sess, pair.RefreshToken, false))
}

func (s *AuthServiceTestSuite) TestSignOutAllRevokesRefreshTokens() {
	op := s.signUp("op@example.org", "secret1")
	pair, _, err := s.auth.SignIn(s.ctx, "op@example.org", "secret1")
	s.Require().NoError(err)

	sess := &Session{OperatorID: op.ID, Email: op.Email}
	s.Require().NoError(s.auth.SignOut(s.ctx, sess, "", true))

	_, err = s.auth.Refresh(s.ctx, pair.RefreshToken)
	s.ErrorIs(err, ErrInvalidToken)

	s.ErrorIs(s.auth.SignOut(s.ctx, nil, "", false), ErrUnauthenticated)
}

func resetTokenFrom(body string) string {
	idx := strings.Index(body, "reset_token=")
	if idx < 0 {
		return ""
	}
	rest := body[idx+len("reset_token="):]
	if end := strings.IndexAny(rest, "\n &"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func (s *AuthServiceTestSuite) TestPasswordResetFlow() {
	s.signUp("op@example.org", "secret1")

	s.Require().NoError(s.auth.RequestPasswordReset(s.ctx, "op@example.org"))
	msgs := s.mailer.messages()
	s.Require().Len(msgs, 1)
	s.Equal("op@example.org", msgs[0].To)
	s.Contains(msgs[0].Body, "https://fiches.example.org/?reset_token=")
	token := resetTokenFrom(msgs[0].Body)
	s.Require().NotEmpty(token)

	s.ErrorIs(s.auth.ResetPassword(s.ctx, token, "short", "short"), ErrWeakPassword)
	s.ErrorIs(s.auth.ResetPassword(s.ctx, token, "newpass1", "newpass2"), ErrPasswordMismatch)
	long := strings.Repeat("x", 73)
	s.ErrorIs(s.auth.ResetPassword(s.ctx, token, long, long), ErrPasswordTooLong)

	s.Require().NoError(s.auth.ResetPassword(s.ctx, token, "newpass1", "newpass1"))
	s.ErrorIs(s.auth.ResetPassword(s.ctx, token, "newpass1", "newpass1"), ErrInvalidToken)

	_, _, err := s.auth.SignIn(s.ctx, "op@example.org", "secret1")
	s.ErrorIs(err, ErrInvalidCredentials)
	_, _, err = s.auth.SignIn(s.ctx, "op@example.org", "newpass1")
	s.NoError(err)
}

func (s *AuthServiceTestSuite) TestPasswordResetExpires() {
	s.signUp("op@example.org", "secret1")
	s.Require().NoError(s.auth.RequestPasswordReset(s.ctx, "op@example.org"))
	token := resetTokenFrom(s.mailer.messages()[0].Body)

	s.clock = s.clock.Add(61 * time.Minute)
	s.ErrorIs(s.auth.ResetPassword(s.ctx, token, "newpass1", "newpass1"), ErrInvalidToken)
}

type failingPasswordStore struct {
	*store.Memory
}

func (f failingPasswordStore) UpdateOperatorPassword(ctx context.Context, id, hash string) error {
	return errors.New("connection reset")
}

func (s *AuthServiceTestSuite) TestPasswordResetKeepsTokenWhenUpdateFails() {
	s.signUp("op@example.org", "secret1")
	s.Require().NoError(s.auth.RequestPasswordReset(s.ctx, "op@example.org"))
	token := resetTokenFrom(s.mailer.messages()[0].Body)

	s.auth.Store = failingPasswordStore{Memory: s.store}
	err := s.auth.ResetPassword(s.ctx, token, "newpass1", "newpass1")
	s.Require().Error(err)
	s.NotErrorIs(err, ErrInvalidToken)

	s.auth.Store = s.store
	s.Require().NoError(s.auth.ResetPassword(s.ctx, token, "newpass1", "newpass1"))
	_, _, err = s.auth.SignIn(s.ctx, "op@example.org", "newpass1")
	s.NoError(err)
}

func (s *AuthServiceTestSuite) TestPasswordResetUnknownEmailIsSilent() {
	s.NoError(s.auth.RequestPasswordReset(s.ctx, "ghost@example.org"))
	s.Empty(s.mailer.messages())
}

func (s *AuthServiceTestSuite) TestInvite() {
	_, err := s.auth.Invite(s.ctx, nil, "new@example.org")
	s.ErrorIs(err, ErrUnauthenticated)

	inv, err := s.auth.Invite(s.ctx, operatorSession, "  New@Example.org ")
	s.Require().NoError(err)
	s.Equal("new@example.org", inv.Email)
	s.Require().NotNil(inv.InvitedBy)
	s.Equal(operatorSession.OperatorID, *inv.InvitedBy)

	_, err = s.auth.Invite(s.ctx, operatorSession, "new@example.org")
	s.ErrorIs(err, ErrAlreadyInvited)

	_, err = s.auth.Invite(s.ctx, operatorSession, "nope")
	s.ErrorIs(err, ErrInvalidEmail)

	invited, err := s.auth.IsInvited(s.ctx, "NEW@example.org")
	s.Require().NoError(err)
	s.True(invited)

	list, err := s.auth.ListInvites(s.ctx, operatorSession)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *AuthServiceTestSuite) TestAuthStateListeners() {
	var events []AuthEvent
	unsubscribe := s.auth.OnAuthStateChange(func(ch AuthStateChange) {
		events = append(events, ch.Event)
	})

	op := s.signUp("op@example.org", "secret1")
	_, _, err := s.auth.SignIn(s.ctx, "op@example.org", "secret1")
	s.Require().NoError(err)
	s.Require().NoError(s.auth.SignOut(s.ctx, &Session{OperatorID: op.ID}, "", false))

	s.Equal([]AuthEvent{AuthSignedUp, AuthSignedIn, AuthSignedOut}, events)

	unsubscribe()
	_, _, err = s.auth.SignIn(s.ctx, "op@example.org", "secret1")
	s.Require().NoError(err)
	s.Len(events, 3)
}
