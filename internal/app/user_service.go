package app

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/domain/user"
	"github.com/openctemio/authz/pkg/logger"
)

// UserService resolves the local users that grants attach to.
type UserService struct {
	repo   user.Repository
	logger *logger.Logger
}

// NewUserService creates a new UserService.
func NewUserService(repo user.Repository, log *logger.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: log.With("service", "user"),
	}
}

// sanitizeString trims and HTML-escapes s, keeping at most maxLen
// characters of output. Cuts fall between whole runes and never split an
// entity, so the result is always valid UTF-8.
func sanitizeString(s string, maxLen int) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(s) {
		piece := html.EscapeString(string(r))
		w := utf8.RuneCountInString(piece)
		if n+w > maxLen {
			break
		}
		b.WriteString(piece)
		n += w
	}
	return b.String()
}

// SyncFromIdentity resolves the local user of an authenticated identity,
// creating it on first sight. A placeholder created by an invitation is
// claimed when the email matches. Called by middleware on each request.
func (s *UserService) SyncFromIdentity(ctx context.Context, externalID, email, name string) (*user.User, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, fmt.Errorf("%w: identity subject is required", shared.ErrValidation)
	}
	email = user.NormalizeEmail(email)
	if email == "" {
		return nil, user.ErrInvalidEmail
	}

	u, err := s.repo.UpsertFromIdentity(ctx, externalID, email, sanitizeString(name, 255))
	if err != nil {
		if errors.Is(err, user.ErrIdentityTaken) {
			s.logger.Warn("identity email already linked to another identity", "email", email)
		}
		return nil, err
	}
	return u, nil
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(ctx context.Context, id string) (*user.User, error) {
	userID, err := parseID(id, "user id")
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, userID)
}

// FindOrCreatePlaceholder returns the user registered under an email,
// creating a credential-less placeholder when there is none.
func (s *UserService) FindOrCreatePlaceholder(ctx context.Context, email, name string) (*user.User, bool, error) {
	return findOrCreatePlaceholder(ctx, s.repo, s.logger, email, name)
}

func findOrCreatePlaceholder(ctx context.Context, repo user.Repository, log *logger.Logger, email, name string) (*user.User, bool, error) {
	email = user.NormalizeEmail(email)
	u, err := repo.GetByEmail(ctx, email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return nil, false, err
	}

	u, err = user.NewPlaceholder(email, sanitizeString(name, 255))
	if err != nil {
		return nil, false, err
	}
	if err := repo.Create(ctx, u); err != nil {
		// Lost a race with another invite or a sign-up.
		if errors.Is(err, user.ErrEmailTaken) {
			existing, getErr := repo.GetByEmail(ctx, email)
			return existing, false, getErr
		}
		return nil, false, err
	}

	log.Info("placeholder user created", "user_id", u.ID().String(), "email", email)
	return u, true, nil
}
