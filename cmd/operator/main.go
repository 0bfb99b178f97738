// Command operator puts an email on the allow-list and, unless -invite-only
// is given, creates its operator account with a password read from the
// terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/zaqqye/fiche_backend_v1/internal/config"
	"github.com/zaqqye/fiche_backend_v1/internal/database"
	"github.com/zaqqye/fiche_backend_v1/internal/logging"
	"github.com/zaqqye/fiche_backend_v1/internal/models"
	"github.com/zaqqye/fiche_backend_v1/internal/services"
	"github.com/zaqqye/fiche_backend_v1/internal/store"
	"github.com/zaqqye/fiche_backend_v1/internal/utils"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	_ = godotenv.Load()

	email := flag.String("email", "", "operator email")
	inviteOnly := flag.Bool("invite-only", false, "only add the email to the allow-list")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	st := store.NewGormStore(db)

	var password string
	if !*inviteOnly {
		password, err = promptPassword(os.Stdout)
		if err != nil {
			log.Fatalf("read password: %v", err)
		}
	}
	if err := provision(ctx, st, *email, password, os.Stdout); err != nil {
		log.Fatalf("operator: %v", err)
	}
}

func promptPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	fmt.Fprint(w, "Confirm password: ")
	confirm, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	if string(pw) != string(confirm) {
		return "", services.ErrPasswordMismatch
	}
	return string(pw), nil
}

// provision invites email and, when password is set, signs the operator
// up. An existing invite or account is reported, not treated as failure.
func provision(ctx context.Context, st services.AuthStore, email, password string, w io.Writer) error {
	email = services.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: -email is required", services.ErrInvalidInput)
	}
	if !services.ValidEmail(email) {
		return fmt.Errorf("%w: %q", services.ErrInvalidEmail, email)
	}
	if password != "" && !utils.PasswordLongEnough(password) {
		return services.ErrWeakPassword
	}
	if utils.PasswordTooLong(password) {
		return services.ErrPasswordTooLong
	}

	invited, err := st.InviteExists(ctx, email)
	if err != nil {
		return err
	}
	if invited {
		fmt.Fprintf(w, "%s is already invited\n", email)
	} else {
		if err := st.CreateInvite(ctx, &models.OperatorInvite{Email: email}); err != nil {
			return fmt.Errorf("invite: %w", err)
		}
		fmt.Fprintf(w, "invited %s\n", email)
	}

	if strings.TrimSpace(password) == "" {
		return nil
	}
	auth := services.NewAuthService(st, nil, services.AuthConfig{})
	op, err := auth.SignUp(ctx, email, password)
	if errors.Is(err, services.ErrAccountExists) {
		fmt.Fprintf(w, "account for %s already exists\n", email)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "created operator %s (%s)\n", op.Email, op.ID)
	return nil
}
