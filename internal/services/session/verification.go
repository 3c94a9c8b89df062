package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/metrics"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/bobmcallan/gatekeep/internal/tokens"
)

// issueVerification replaces the user's outstanding tokens of typ with a new one.
func (s *Service) issueVerification(ctx context.Context, userID string, typ models.VerificationType) (string, error) {
	store := s.storage.VerificationStore()
	if err := store.DeleteUserVerificationTokens(ctx, userID, typ); err != nil {
		return "", fmt.Errorf("failed to clear verification tokens: %w", err)
	}
	value, err := tokens.RandomHex(tokens.VerificationBytes)
	if err != nil {
		return "", err
	}
	now := s.now()
	if err := store.SaveVerificationToken(ctx, &models.VerificationToken{
		Token:     value,
		UserID:    userID,
		Type:      typ,
		ExpiresAt: now.Add(typ.TTL()),
		CreatedAt: now,
	}); err != nil {
		return "", fmt.Errorf("failed to save verification token: %w", err)
	}
	return value, nil
}

func (s *Service) sendVerification(ctx context.Context, user *models.User) error {
	token, err := s.issueVerification(ctx, user.ID, models.VerificationEmail)
	if err != nil {
		return err
	}
	return s.mailer.SendVerificationEmail(ctx, user.Email, user.Name, token)
}

// consume takes a single-use token. Expired tokens are consumed too, so they
// are gone after the first attempt.
func (s *Service) consume(ctx context.Context, token string, typ models.VerificationType) (*models.VerificationToken, error) {
	if token == "" {
		return nil, common.BadRequest("token is required")
	}
	vt, err := s.storage.VerificationStore().ConsumeVerificationToken(ctx, token, typ)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, common.BadRequest("invalid or used token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}
	if vt.Expired(s.now()) {
		return nil, common.BadRequest("token expired")
	}
	return vt, nil
}

// VerifyEmail marks the token owner's email as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	err := s.verifyEmail(ctx, token)
	s.metrics.AuthEvent(metrics.EventVerifyEmail, err)
	return err
}

func (s *Service) verifyEmail(ctx context.Context, token string) error {
	vt, err := s.consume(ctx, token, models.VerificationEmail)
	if err != nil {
		return err
	}
	user, err := s.storage.UserStore().GetUser(ctx, vt.UserID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return common.BadRequest("invalid or used token")
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	user.EmailVerified = true
	user.UpdatedAt = s.now()
	if err := s.storage.UserStore().SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("Email verified")
	return nil
}

// ResendVerification mails a fresh verification link to a signed-in user.
func (s *Service) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.storage.UserStore().GetUser(ctx, userID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return common.NotFound("user not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.EmailVerified {
		return common.BadRequest("email already verified")
	}
	if err := s.sendVerification(ctx, user); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// ResendVerificationByEmail never reveals whether the email is registered;
// failures are logged and swallowed.
func (s *Service) ResendVerificationByEmail(ctx context.Context, email string) error {
	user, err := s.storage.UserStore().GetUserByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("Resend verification lookup failed")
		}
		return nil
	}
	if user.EmailVerified {
		return nil
	}
	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to resend verification email")
	}
	return nil
}

// ForgotPassword mails a reset link when the email belongs to a user with a
// password. The outcome is never revealed to the caller.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.storage.UserStore().GetUserByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("Forgot password lookup failed")
		}
		return nil
	}
	if !user.HasPassword() || user.Status != models.UserStatusActive {
		return nil
	}
	token, err := s.issueVerification(ctx, user.ID, models.VerificationPasswordReset)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to issue reset token")
		return nil
	}
	if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, user.Name, token); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to send reset email")
	}
	return nil
}

// ResetPassword sets a new password and signs the user out everywhere.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	err := s.resetPassword(ctx, token, newPassword)
	s.metrics.AuthEvent(metrics.EventPasswordReset, err)
	return err
}

func (s *Service) resetPassword(ctx context.Context, token, newPassword string) error {
	if err := common.ValidatePassword(newPassword); err != nil {
		return err
	}
	vt, err := s.consume(ctx, token, models.VerificationPasswordReset)
	if err != nil {
		return err
	}
	user, err := s.storage.UserStore().GetUser(ctx, vt.UserID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return common.BadRequest("invalid or used token")
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	return s.setPassword(ctx, user, newPassword)
}

// setPassword stores a new hash and revokes every session of the user.
func (s *Service) setPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now()
	if err := s.storage.UserStore().SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	n, err := s.storage.SessionStore().RevokeUserSessionRefreshTokens(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.logger.Info().Str("user_id", user.ID).Int("sessions_revoked", n).Msg("Password changed")
	return nil
}
