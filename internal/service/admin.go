package service

import (
	"context"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"basekit/internal/domain"
)

// AdminService implements administrative user operations. Every mutation is
// idempotent and reports success even for unknown user IDs, so the admin
// API cannot be used to probe which accounts exist.
type AdminService struct {
	users  domain.UserRepository
	audit  domain.AuditRepository
	logger *slog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(users domain.UserRepository, audit domain.AuditRepository, logger *slog.Logger) *AdminService {
	return &AdminService{
		users:  users,
		audit:  audit,
		logger: logger.With("component", "admin_service"),
	}
}

// BanUser marks a user as banned.
func (s *AdminService) BanUser(ctx context.Context, actor domain.Actor, userID string) error {
	if err := s.users.SetBanned(ctx, userID, true); err != nil {
		return err
	}
	s.auditLog(ctx, actor, "ban_user", userID)
	return nil
}

// UnbanUser clears the banned flag.
func (s *AdminService) UnbanUser(ctx context.Context, actor domain.Actor, userID string) error {
	if err := s.users.SetBanned(ctx, userID, false); err != nil {
		return err
	}
	s.auditLog(ctx, actor, "unban_user", userID)
	return nil
}

// SetRole assigns a new application role.
func (s *AdminService) SetRole(ctx context.Context, actor domain.Actor, userID, role string) error {
	if role == "" {
		return domain.ErrValidation("role is required")
	}
	if err := s.users.SetRole(ctx, userID, role); err != nil {
		return err
	}
	s.auditLog(ctx, actor, "set_role", userID)
	return nil
}

// SetPassword replaces a user's credential with a bcrypt hash of the given
// password.
func (s *AdminService) SetPassword(ctx context.Context, actor domain.Actor, userID, password string) error {
	if len(password) < 8 {
		return domain.ErrValidation("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.users.SetPasswordHash(ctx, userID, string(hash)); err != nil {
		return err
	}
	s.auditLog(ctx, actor, "set_password", userID)
	return nil
}

func (s *AdminService) auditLog(ctx context.Context, actor domain.Actor, action, userID string) {
	entry := &domain.AuditEntry{
		ActorID:   actor.UserID,
		Table:     "users",
		Operation: action,
		RecordID:  userID,
		Outcome:   "allow",
	}
	if err := s.audit.Insert(ctx, entry); err != nil {
		s.logger.Warn("audit insert failed", "action", action, "error", err)
	}
}
