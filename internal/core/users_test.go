package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sampleflow/internal/auth"
	"sampleflow/pkg/domain"
)

func linkToken(t *testing.T, body, marker string) string {
	t.Helper()
	i := strings.Index(body, marker)
	if i < 0 {
		t.Fatalf("no %s link in %q", marker, body)
	}
	rest := body[i+len(marker):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func TestEmailAndPasswordRules(t *testing.T) {
	for email, want := range map[string]bool{
		"jo@uni-heidelberg.de":      true,
		"jo@stud.uni-heidelberg.de": true,
		"jo@embl.de":                true,
		"jo@dkfz.de":                true,
		"jo@gmail.com":              false,
		"jo@embl.de.evil.com":       false,
	} {
		if got := ValidEmail(email); got != want {
			t.Fatalf("ValidEmail(%q) = %v", email, got)
		}
	}
	for password, want := range map[string]bool{
		"Abcdefg1": true,
		"abcdefg1": false,
		"ABCDEFG1": false,
		"Abcdefgh": false,
		"Abc1":     false,
	} {
		if got := ValidPassword(password); got != want {
			t.Fatalf("ValidPassword(%q) = %v", password, got)
		}
	}
}

func TestSignupActivateLogin(t *testing.T) {
	env := newTestEnv(t, monday)
	ctx := context.Background()
	const email, password = "jo@embl.de", "Secret123"

	msg, err := env.svc.Signup(ctx, "Jo@EMBL.de", password)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if !strings.HasPrefix(msg, "Successful signup for jo@embl.de.") {
		t.Fatalf("unexpected message %q", msg)
	}
	if _, err := env.svc.Signup(ctx, email, password); err == nil || err.Error() != MessageEmailInUse {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if _, err := env.svc.Login(ctx, email, password); err == nil || err.Error() != "User account is not yet activated" {
		t.Fatalf("expected inactive account, got %v", err)
	}

	mail, _ := env.mail.Last()
	if mail.Subject != "SampleFlow account activation" {
		t.Fatalf("unexpected subject %q", mail.Subject)
	}
	token := linkToken(t, mail.Body, "https://sampleflow.test/activate/")
	if msg, err := env.svc.Activate(ctx, token); err != nil || msg != "Account jo@embl.de activated" {
		t.Fatalf("activate: %q %v", msg, err)
	}
	if _, err := env.svc.Activate(ctx, token); err == nil || err.Error() != "Account for jo@embl.de is already activated" {
		t.Fatalf("expected already activated, got %v", err)
	}
	if _, err := env.svc.Activate(ctx, "garbage"); err == nil || err.Error() != "Invalid or expired activation link" {
		t.Fatalf("expected invalid link, got %v", err)
	}

	if _, err := env.svc.Login(ctx, email, "Wrong1234"); domain.StatusOf(err) != domain.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := env.svc.Login(ctx, "nobody@embl.de", password); err == nil || err.Error() != "Unknown email address" {
		t.Fatalf("expected unknown email, got %v", err)
	}
	res, err := env.svc.Login(ctx, email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.User.Email != email || res.User.IsAdmin || res.AccessToken == "" {
		t.Fatalf("unexpected login result %+v", res)
	}
	user, err := env.svc.Authenticate(ctx, res.AccessToken)
	if err != nil || user.Email != email {
		t.Fatalf("authenticate: %+v %v", user, err)
	}

	env.clock.Set(monday.Add(31 * time.Minute))
	if _, err := env.svc.Authenticate(ctx, res.AccessToken); domain.StatusOf(err) != domain.StatusUnauthorized {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestSignupRejections(t *testing.T) {
	env := newTestEnv(t, monday)
	ctx := context.Background()
	if _, err := env.svc.Signup(ctx, "jo@gmail.com", "Secret123"); err == nil || err.Error() != MessageInvalidEmail {
		t.Fatalf("expected email error, got %v", err)
	}
	if _, err := env.svc.Signup(ctx, "jo@embl.de", "weak"); err == nil || err.Error() != MessageInvalidPassword {
		t.Fatalf("expected password error, got %v", err)
	}

	env.mail.SetErr(errors.New("smtp down"))
	if _, err := env.svc.Signup(ctx, "jo@embl.de", "Secret123"); err == nil || err.Error() != "Failed to send activation email" {
		t.Fatalf("expected send failure, got %v", err)
	}
	users, _ := env.svc.ListUsers(ctx)
	if len(users) != 0 {
		t.Fatalf("no user should be created when the email fails, got %+v", users)
	}
}

func TestPasswordResetIsSingleUse(t *testing.T) {
	env := newTestEnv(t, monday)
	ctx := context.Background()
	if _, err := env.svc.CreateAdmin(ctx, "admin@embl.de", "Admin1234"); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	msg, err := env.svc.RequestPasswordReset(ctx, "nobody@embl.de")
	if err != nil || msg != "Sent password reset email to 'nobody@embl.de'" {
		t.Fatalf("reset unknown: %q %v", msg, err)
	}
	if mail, _ := env.mail.Last(); !strings.Contains(mail.Body, "no SampleFlow account was found") {
		t.Fatalf("unexpected unknown-account body %q", mail.Body)
	}

	if _, err := env.svc.RequestPasswordReset(ctx, "admin@embl.de"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	mail, _ := env.mail.Last()
	token := linkToken(t, mail.Body, "https://sampleflow.test/reset_password/")

	if _, err := env.svc.ResetPassword(ctx, token, "other@embl.de", "Newpass123"); err == nil || err.Error() != "Invalid email address" {
		t.Fatalf("expected email mismatch, got %v", err)
	}
	if msg, err := env.svc.ResetPassword(ctx, token, "ADMIN@embl.de", "Newpass123"); err != nil || msg != "Password changed" {
		t.Fatalf("reset: %q %v", msg, err)
	}
	if _, err := env.svc.ResetPassword(ctx, token, "admin@embl.de", "Other1234"); err == nil || err.Error() != "Invalid or expired password reset link" {
		t.Fatalf("expected reused token to fail, got %v", err)
	}
	if _, err := env.svc.Login(ctx, "admin@embl.de", "Newpass123"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestChangePasswordAndTokens(t *testing.T) {
	env := newTestEnv(t, monday)
	ctx := context.Background()
	admin, err := env.svc.CreateAdmin(ctx, "admin@embl.de", "Admin1234")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if !admin.Activated || !admin.IsAdmin {
		t.Fatalf("unexpected admin %+v", admin)
	}
	if _, err := env.svc.ChangePassword(ctx, admin.ID, "wrong", "Changed123"); err == nil || err.Error() != "Failed to change password: current password incorrect." {
		t.Fatalf("expected incorrect password, got %v", err)
	}
	if msg, err := env.svc.ChangePassword(ctx, admin.ID, "Admin1234", "Changed123"); err != nil || msg != "Password changed." {
		t.Fatalf("change password: %q %v", msg, err)
	}

	token, err := env.svc.IssueToken(ctx, "admin@embl.de", 26*7*24*time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	env.clock.Set(monday.AddDate(0, 0, 100))
	user, err := env.svc.Authenticate(ctx, token)
	if err != nil || !user.IsAdmin {
		t.Fatalf("long lived token rejected: %+v %v", user, err)
	}
	if _, err := env.svc.IssueToken(ctx, "ghost@embl.de", time.Hour); domain.StatusOf(err) != domain.StatusNotFound {
		t.Fatalf("expected unknown user, got %v", err)
	}
}

func TestResetLinkRejectedAfterRestart(t *testing.T) {
	env := newTestEnv(t, monday)
	ctx := context.Background()
	if _, err := env.svc.CreateAdmin(ctx, "admin@embl.de", "Admin1234"); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if _, err := env.svc.RequestPasswordReset(ctx, "admin@embl.de"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	mail, _ := env.mail.Last()
	token := linkToken(t, mail.Body, "https://sampleflow.test/reset_password/")

	env.clock.Set(monday.Add(5 * time.Second))
	if _, err := env.svc.ResetPassword(ctx, token, "admin@embl.de", "Newpass123"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// a fresh token service has no record of redeemed tokens
	env.clock.Set(monday.Add(10 * time.Second))
	fresh := auth.NewTokens([]byte("0123456789abcdef-test-secret"), auth.DefaultIssuer)
	fresh.SetNow(env.clock.Now)
	restarted := NewService(env.svc.Store(), env.svc.Blobs(), WithClock(env.clock), WithTokens(fresh), WithPasswordHasher(auth.NewBcryptHasher(bcrypt.MinCost)))
	if _, err := restarted.ResetPassword(ctx, token, "admin@embl.de", "Other1234"); err == nil || err.Error() != "Invalid or expired password reset link" {
		t.Fatalf("expected replayed link to fail, got %v", err)
	}
	if _, err := restarted.Login(ctx, "admin@embl.de", "Newpass123"); err != nil {
		t.Fatalf("login with reset password: %v", err)
	}
}
