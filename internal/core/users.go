package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
	"unicode"

	"sampleflow/internal/notify"
	"sampleflow/pkg/domain"
)

var emailPattern = regexp.MustCompile(`^\S+@((\S*heidelberg)|embl|dkfz)\.de$`)

// Account validation messages.
const (
	MessageInvalidEmail    = "Please use a uni-heidelberg, dkfz or embl email address."
	MessageInvalidPassword = "Password must contain at least 8 characters, including lower-case, upper-case and a number"
	MessageEmailInUse      = "This email address is already in use"
)

// ValidEmail reports whether email belongs to one of the accepted institutes.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidPassword requires at least eight characters mixing upper case, lower
// case and digits.
func ValidPassword(password string) bool {
	var upper, lower, digit bool
	count := 0
	for _, r := range password {
		count++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return count >= 8 && upper && lower && digit
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	User        domain.PublicUser `json:"user"`
	AccessToken string            `json:"access_token"`
}

func (s *Service) findUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var (
		user  domain.User
		found bool
	)
	err := s.store.View(ctx, func(view TransactionView) error {
		user, found = view.FindUserByEmail(email)
		return nil
	})
	return user, found, err
}

// Signup registers an inactive account and mails its activation link. No
// account is stored when the email cannot be sent.
func (s *Service) Signup(ctx context.Context, email, password string) (string, error) {
	var message string
	err := s.run(ctx, OpSignup, func(ctx context.Context) error {
		email = domain.NormalizeEmail(email)
		if !ValidEmail(email) {
			return domain.ValidationError{Message: MessageInvalidEmail}
		}
		if !ValidPassword(password) {
			return domain.ValidationError{Message: MessageInvalidPassword}
		}
		if _, found, err := s.findUserByEmail(ctx, email); err != nil {
			return err
		} else if found {
			return domain.ValidationError{Message: MessageEmailInUse}
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return err
		}
		if err := s.sendActivationEmail(ctx, email); err != nil {
			s.logger.Warn("activation email failed", "email", email, "error", err)
			return domain.TransportError{Message: "Failed to send activation email", Err: err}
		}
		if _, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.CreateUser(domain.User{Email: email, PasswordHash: hash})
			return err
		}); err != nil {
			var integrity domain.IntegrityError
			if errors.As(err, &integrity) {
				return domain.ValidationError{Message: MessageEmailInUse}
			}
			return err
		}
		s.logger.Info("user signed up", "email", email)
		message = fmt.Sprintf("Successful signup for %s. To activate your account, please click on the link in the activation email from %s sent to this email address", email, s.mailFrom)
		return nil
	})
	return message, err
}

func (s *Service) sendActivationEmail(ctx context.Context, email string) error {
	token, err := s.tokens.IssueActivation(email)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/activate/%s", s.siteURL, token)
	s.logger.Debug("activation url issued", "email", email)
	body := "To activate your SampleFlow account, please confirm your email address by clicking on the following link:\n\n" +
		url + "\n\nIf you did not sign up for an account please disregard this email."
	return s.notifier.Send(ctx, notify.Message{
		To:      email,
		Subject: "SampleFlow account activation",
		Body:    notify.Wrap(email, body, s.siteURL),
	})
}

// Activate enables the account an activation token was issued for.
func (s *Service) Activate(ctx context.Context, token string) (string, error) {
	var message string
	err := s.run(ctx, OpActivate, func(ctx context.Context) error {
		email, err := s.tokens.ParseActivation(token)
		if err != nil {
			return domain.ValidationError{Message: "Invalid or expired activation link"}
		}
		_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			user, ok := tx.FindUserByEmail(email)
			if !ok {
				return domain.ValidationError{Message: fmt.Sprintf("Unknown email address %s", email)}
			}
			if user.Activated {
				return domain.ValidationError{Message: fmt.Sprintf("Account for %s is already activated", email)}
			}
			_, err := tx.UpdateUser(user.ID, func(u *domain.User) error {
				u.Activated = true
				return nil
			})
			return err
		})
		if err != nil {
			return err
		}
		s.logger.Info("user activated", "email", email)
		message = fmt.Sprintf("Account %s activated", email)
		return nil
	})
	return message, err
}

// RequestPasswordReset mails a reset link, or a notice that no account exists
// when the address is unknown.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var message string
	err := s.run(ctx, OpRequestPasswordReset, func(ctx context.Context) error {
		email = domain.NormalizeEmail(email)
		_, found, err := s.findUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		var body string
		if !found {
			s.logger.Info("password reset for unknown email", "email", email)
			body = "A password reset request was made for this email address, but no SampleFlow account was found for this address.\n\n" +
				"Maybe you signed up with a different email address?\n\n" +
				"If you did not make this password reset request please disregard this email."
		} else {
			token, err := s.tokens.IssuePasswordReset(email)
			if err != nil {
				return err
			}
			body = "To reset the password for your SampleFlow account, please click on the following link (valid for 1 hour):\n\n" +
				fmt.Sprintf("%s/reset_password/%s", s.siteURL, token) +
				"\n\nIf you did not make this password reset request please disregard this email."
		}
		if err := s.notifier.Send(ctx, notify.Message{
			To:      email,
			Subject: "SampleFlow password reset",
			Body:    notify.Wrap(email, body, s.siteURL),
		}); err != nil {
			return domain.TransportError{Message: "Failed to send password reset email", Err: err}
		}
		message = fmt.Sprintf("Sent password reset email to '%s'", email)
		return nil
	})
	return message, err
}

// ResetPassword sets a new password using a reset token. Each token works once.
func (s *Service) ResetPassword(ctx context.Context, token, email, newPassword string) (string, error) {
	var message string
	err := s.run(ctx, OpResetPassword, func(ctx context.Context) error {
		claims, err := s.tokens.ParsePasswordReset(token)
		if err != nil {
			return domain.ValidationError{Message: "Invalid or expired password reset link"}
		}
		email = domain.NormalizeEmail(email)
		if email != domain.NormalizeEmail(claims.Email) {
			return domain.ValidationError{Message: "Invalid email address"}
		}
		if !ValidPassword(newPassword) {
			return domain.ValidationError{Message: MessageInvalidPassword}
		}
		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return err
		}
		if _, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			user, ok := tx.FindUserByEmail(email)
			if !ok {
				return domain.ValidationError{Message: fmt.Sprintf("Unknown email address %s", email)}
			}
			if claims.IssuedBefore(user.PasswordChangedAt) {
				return domain.ValidationError{Message: "Invalid or expired password reset link"}
			}
			_, err := tx.UpdateUser(user.ID, func(u *domain.User) error {
				u.PasswordHash = hash
				u.PasswordChangedAt = s.now()
				return nil
			})
			return err
		}); err != nil {
			return err
		}
		s.tokens.ConsumePasswordReset(token)
		s.logger.Info("password reset", "email", email)
		message = "Password changed"
		return nil
	})
	return message, err
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	err := s.run(ctx, OpLogin, func(ctx context.Context) error {
		user, found, err := s.findUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if !found {
			return domain.AuthError{Message: "Unknown email address"}
		}
		if !user.Activated {
			return domain.AuthError{Message: "User account is not yet activated"}
		}
		if !s.hasher.Verify(user.PasswordHash, password) {
			return domain.AuthError{Message: "Incorrect password"}
		}
		if err := s.rehash(ctx, user, password); err != nil {
			s.logger.Warn("password rehash failed", "user_id", user.ID, "error", err)
		}
		token, err := s.tokens.IssueAccess(user, s.accessTTL)
		if err != nil {
			return err
		}
		out = LoginResult{User: user.Public(), AccessToken: token}
		return nil
	})
	return out, err
}

// rehash upgrades a stored hash produced with an outdated cost.
func (s *Service) rehash(ctx context.Context, user domain.User, password string) error {
	checker, ok := s.hasher.(interface{ NeedsRehash(hash string) bool })
	if !ok || !checker.NeedsRehash(user.PasswordHash) {
		return nil
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateUser(user.ID, func(u *domain.User) error {
			u.PasswordHash = hash
			return nil
		})
		return err
	})
	return err
}

// ChangePassword replaces the password of userID after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, newPassword string) (string, error) {
	var message string
	err := s.run(ctx, OpChangePassword, func(ctx context.Context) error {
		user, err := s.userByID(ctx, userID)
		if err != nil {
			return err
		}
		if !s.hasher.Verify(user.PasswordHash, current) {
			return domain.AuthError{Message: "Failed to change password: current password incorrect."}
		}
		if !ValidPassword(newPassword) {
			return domain.ValidationError{Message: MessageInvalidPassword}
		}
		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return err
		}
		if _, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.UpdateUser(userID, func(u *domain.User) error {
				u.PasswordHash = hash
				u.PasswordChangedAt = s.now()
				return nil
			})
			return err
		}); err != nil {
			return err
		}
		message = "Password changed."
		return nil
	})
	return message, err
}

// CreateAdmin stores an activated admin account. The email and password are
// not checked against the signup rules.
func (s *Service) CreateAdmin(ctx context.Context, email, password string) (domain.User, error) {
	var created domain.User
	err := s.run(ctx, OpCreateAdmin, func(ctx context.Context) error {
		if domain.NormalizeEmail(email) == "" || password == "" {
			return domain.ValidationError{Message: "Email and password required"}
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return err
		}
		_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateUser(domain.User{Email: email, PasswordHash: hash, Activated: true, IsAdmin: true})
			return err
		})
		if err != nil {
			return err
		}
		s.logger.Info("admin created", "email", created.Email, "user_id", created.ID)
		return nil
	})
	return created, err
}

// ListUsers returns every account without credentials, ordered by id.
func (s *Service) ListUsers(ctx context.Context) ([]domain.PublicUser, error) {
	out := []domain.PublicUser{}
	err := s.run(ctx, OpListUsers, func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			for _, user := range view.ListUsers() {
				out = append(out, user.Public())
			}
			return nil
		})
	})
	return out, err
}

// UserByID loads an account.
func (s *Service) UserByID(ctx context.Context, id int64) (domain.User, error) {
	return s.userByID(ctx, id)
}

func (s *Service) userByID(ctx context.Context, id int64) (domain.User, error) {
	var (
		user  domain.User
		found bool
	)
	if err := s.store.View(ctx, func(view TransactionView) error {
		user, found = view.FindUser(id)
		return nil
	}); err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, domain.NotFoundError{Entity: domain.EntityUser, ID: strconv.FormatInt(id, 10)}
	}
	return user, nil
}

// IssueToken signs an access token for the account with email, valid for ttl.
func (s *Service) IssueToken(ctx context.Context, email string, ttl time.Duration) (string, error) {
	var token string
	err := s.run(ctx, OpIssueToken, func(ctx context.Context) error {
		user, found, err := s.findUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFoundError{Entity: domain.EntityUser, ID: email, Message: fmt.Sprintf("Unknown email address %s", email)}
		}
		token, err = s.tokens.IssueAccess(user, ttl)
		return err
	})
	return token, err
}

// Authenticate resolves an access token to the account it was issued for.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.User, error) {
	var user domain.User
	err := s.run(ctx, OpAuthenticate, func(ctx context.Context) error {
		claims, err := s.tokens.ParseAccess(token)
		if err != nil {
			return domain.AuthError{Message: "Invalid or expired token"}
		}
		id, err := claims.UserID()
		if err != nil {
			return domain.AuthError{Message: "Invalid or expired token"}
		}
		user, err = s.userByID(ctx, id)
		if err != nil {
			return domain.AuthError{Message: "Unknown user"}
		}
		return nil
	})
	return user, err
}
