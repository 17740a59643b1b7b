package services

import (
	"context"
	"errors"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"libraryhub/internal/auth"
	"libraryhub/internal/models"
	"libraryhub/internal/repositories"
)

const minPasswordLength = 6

// AccountService owns registration, login and profile maintenance. It also
// resolves bearer tokens for the auth middleware.
type AccountService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Resolve(ctx context.Context, token string) (*models.User, error)

	Profile(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileUpdate) (*models.User, error)
	SetRole(ctx context.Context, userID uuid.UUID, role models.UserRole) (*models.User, error)

	EnsureAdmin(ctx context.Context, name, email, password string) error
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// ProfileUpdate holds the editable profile fields. Empty fields keep the
// stored value.
type ProfileUpdate struct {
	Name           string
	Email          string
	Address        string
	Grade          string
	PhoneNumber    string
	ProfilePicture string
	Password       string
}

type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type accountService struct {
	db         *gorm.DB
	userRepo   repositories.UserRepository
	tokens     *auth.TokenIssuer
	bcryptCost int
	timeout    time.Duration
}

func NewAccountService(db *gorm.DB, userRepo repositories.UserRepository, tokens *auth.TokenIssuer, bcryptCost int, storeTimeout time.Duration) AccountService {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &accountService{
		db:         db,
		userRepo:   userRepo,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		timeout:    storeTimeout,
	}
}

func (s *accountService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ValidationError("name is required")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user := &models.User{Name: name, Email: email, PasswordHash: hash, Role: models.UserRoleUser}
	if err := s.userRepo.Create(s.db.WithContext(ctx), user); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		log.Printf("[ERROR] Register: failed to create user %s: %v", email, err)
		return nil, storeError("create user", err)
	}

	log.Printf("[INFO] Register: created user %s (id=%s)", email, user.ID)
	return s.issue(user)
}

func (s *accountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.userRepo.GetByEmail(s.db.WithContext(ctx), strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, storeError("load user", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		log.Printf("[WARN] Login: bad password for %s", user.Email)
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Resolve verifies token and loads its user. The stored role is returned, so
// a role change takes effect without reissuing tokens.
func (s *accountService) Resolve(ctx context.Context, token string) (*models.User, error) {
	id, _, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := s.Profile(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrUnauthenticated
	}
	return user, err
}

func (s *accountService) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.userRepo.GetByID(s.db.WithContext(ctx), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError("load user", err)
	}
	return user, nil
}

func (s *accountService) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileUpdate) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var updated *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByID(tx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return storeError("load user", err)
		}

		if v := strings.TrimSpace(in.Name); v != "" {
			user.Name = v
		}
		if strings.TrimSpace(in.Email) != "" {
			email, err := normalizeEmail(in.Email)
			if err != nil {
				return err
			}
			user.Email = email
		}
		keepIfEmpty(&user.Address, in.Address)
		keepIfEmpty(&user.Grade, in.Grade)
		keepIfEmpty(&user.PhoneNumber, in.PhoneNumber)
		keepIfEmpty(&user.ProfilePicture, in.ProfilePicture)
		if in.Password != "" {
			hash, err := s.hash(in.Password)
			if err != nil {
				return err
			}
			user.PasswordHash = hash
		}

		if err := s.userRepo.Save(tx, user); err != nil {
			if isUniqueViolation(err) {
				return ErrEmailTaken
			}
			return storeError("save user", err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, storeError("update profile", err)
	}
	log.Printf("[INFO] UpdateProfile: user %s updated", userID)
	return updated, nil
}

func (s *accountService) SetRole(ctx context.Context, userID uuid.UUID, role models.UserRole) (*models.User, error) {
	if _, ok := models.ParseUserRole(string(role)); !ok {
		return nil, ValidationError("unknown role %q", role)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.userRepo.UpdateRole(s.db.WithContext(ctx), userID, role)
	if err != nil {
		return nil, storeError("update role", err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	log.Printf("[INFO] SetRole: user %s is now %s", userID, role)
	return s.Profile(ctx, userID)
}

// EnsureAdmin creates the bootstrap admin if email is set and unused. An
// existing account with that email is promoted to admin; its password is left alone.
func (s *accountService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	if strings.TrimSpace(email) == "" {
		return nil
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	existing, err := s.userRepo.GetByEmail(db, email)
	switch {
	case err == nil:
		if existing.Role == models.UserRoleAdmin {
			return nil
		}
		if _, err := s.userRepo.UpdateRole(db, existing.ID, models.UserRoleAdmin); err != nil {
			return storeError("promote admin", err)
		}
		log.Printf("[INFO] EnsureAdmin: promoted %s to admin", email)
		return nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return storeError("load admin", err)
	}

	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	if name = strings.TrimSpace(name); name == "" {
		name = "Administrator"
	}
	admin := &models.User{Name: name, Email: email, PasswordHash: hash, Role: models.UserRoleAdmin}
	if err := s.userRepo.Create(db, admin); err != nil {
		return storeError("create admin", err)
	}
	log.Printf("[INFO] EnsureAdmin: created admin %s (id=%s)", email, admin.ID)
	return nil
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

func (s *accountService) issue(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		log.Printf("[ERROR] issue token for %s: %v", user.ID, err)
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *accountService) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ValidationError("password must be at least %d characters", minPasswordLength)
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", ValidationError("%s", err.Error())
	}
	return hash, err
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", ValidationError("invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}

func keepIfEmpty(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
