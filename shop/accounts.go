package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pioneerstudio/patternshop/auth"
	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/store"
	"github.com/samber/lo"
)

// Caller is the identity a request was made with. The zero value is an anonymous caller.
type Caller struct {
	UserID string
	Email  string
	Admin  bool
}

func (c Caller) Anonymous() bool {
	return c.UserID == ""
}

// Identify resolves a bearer token. An empty token is an anonymous caller; a token that does
// not verify is an error.
func (s *Service) Identify(_ context.Context, token string) (Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Caller{}, nil
	}
	if s.tokens == nil {
		return Caller{}, unauthorized("Unauthorized")
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Caller{}, unauthorized("Unauthorized")
	}
	return Caller{UserID: claims.Subject, Email: claims.Email, Admin: claims.Admin}, nil
}

// requireAdmin re-checks the admin flag against the users table, so a revoked admin loses access
// before the token expires.
func (s *Service) requireAdmin(ctx context.Context, c Caller) error {
	if c.Anonymous() {
		return unauthorized("Unauthorized")
	}
	u, err := s.store.UserByID(ctx, c.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return errForbidden
	}
	if err != nil {
		return err
	}
	return lo.Ternary[error](u.IsAdmin, nil, errForbidden)
}

type SignupInput struct {
	Email    string
	Password string
	Name     string
}

type LoginResult struct {
	Token string      `json:"token"`
	User  entity.User `json:"user"`
}

// Signup creates a password account.
func (s *Service) Signup(ctx context.Context, in SignupInput) (entity.User, error) {
	email := store.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return entity.User{}, badRequest("MISSING_FIELDS", "Email and password are required")
	}
	if !validEmail(email) {
		return entity.User{}, errInvalidEmail
	}
	hash, err := auth.HashPassword(in.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		return entity.User{}, badRequest("WEAK_PASSWORD", fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
	}
	if err != nil {
		return entity.User{}, err
	}
	u := entity.User{Email: email, PasswordHash: &hash}
	if name := strings.TrimSpace(in.Name); name != "" {
		u.Name = &name
	}
	err = s.store.CreateUser(ctx, &u)
	if errors.Is(err, store.ErrDuplicate) {
		return entity.User{}, badRequest("ACCOUNT_EXISTS", "An account with this email already exists")
	}
	if err != nil {
		return entity.User{}, fmt.Errorf("create user: %w", err)
	}
	s.log.InfoContext(ctx, "account created", "user", u.ID)
	return u, nil
}

// Login checks a password and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	invalid := unauthorized("Invalid email or password")
	if s.tokens == nil {
		return LoginResult{}, errors.New("login: token signing is not configured")
	}
	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return LoginResult{}, invalid
	}
	if err != nil {
		return LoginResult{}, err
	}
	if auth.CheckPassword(u.PasswordHash, password) != nil {
		return LoginResult{}, invalid
	}
	token, _, err := s.tokens.Issue(u.ID, u.Email, u.IsAdmin)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, User: u}, nil
}

// MyOrders lists the caller's orders with their items.
func (s *Service) MyOrders(ctx context.Context, c Caller) ([]entity.Order, error) {
	if c.Anonymous() {
		return nil, unauthorized("Unauthorized")
	}
	return s.store.OrdersByEmail(ctx, c.Email)
}

// MyDownloads lists the caller's download grants with their patterns.
func (s *Service) MyDownloads(ctx context.Context, c Caller) ([]entity.Download, error) {
	if c.Anonymous() {
		return nil, unauthorized("Unauthorized")
	}
	return s.store.DownloadsByEmail(ctx, c.Email)
}

// Orders lists recent orders for the admin dashboard.
func (s *Service) Orders(ctx context.Context, c Caller, limit int) ([]entity.Order, error) {
	if err := s.requireAdmin(ctx, c); err != nil {
		return nil, err
	}
	return s.store.Orders(ctx, limit)
}

// Users lists accounts for the admin dashboard.
func (s *Service) Users(ctx context.Context, c Caller) ([]entity.User, error) {
	if err := s.requireAdmin(ctx, c); err != nil {
		return nil, err
	}
	return s.store.Users(ctx)
}

// ToggleFavorite adds or removes a pattern from the caller's favorites and reports whether it
// is a favorite afterwards.
func (s *Service) ToggleFavorite(ctx context.Context, c Caller, patternID string) (bool, error) {
	if c.Anonymous() {
		return false, unauthorized("Unauthorized")
	}
	if strings.TrimSpace(patternID) == "" {
		return false, errPatternRequired
	}
	if _, err := s.store.PatternByID(ctx, patternID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, errPatternNotFound
		}
		return false, err
	}
	return s.store.ToggleFavorite(ctx, c.UserID, patternID)
}

func (s *Service) Favorites(ctx context.Context, c Caller) ([]entity.Pattern, error) {
	if c.Anonymous() {
		return nil, unauthorized("Unauthorized")
	}
	return s.store.FavoritePatterns(ctx, c.UserID)
}

// SubscribeNewsletter records a homepage opt-in and syncs it to the mailing list.
func (s *Service) SubscribeNewsletter(ctx context.Context, email string) error {
	email = store.NormalizeEmail(email)
	if email == "" {
		return badRequest("EMAIL_REQUIRED", "Email is required")
	}
	if !validEmail(email) {
		return errInvalidEmail
	}
	err := s.store.AddNewsletterSubscription(ctx, &entity.NewsletterSubscription{Email: email, Source: entity.NewsletterSourceHomepage})
	if errors.Is(err, store.ErrDuplicate) {
		return badRequest("ALREADY_SUBSCRIBED", "This email is already subscribed")
	}
	if err != nil {
		s.log.ErrorContext(ctx, "newsletter insert failed", "email", email, "err", err)
		return internal("SUBSCRIBE_FAILED", "Failed to subscribe")
	}
	s.syncNewsletter(ctx, email, entity.NewsletterSourceHomepage)
	return nil
}
