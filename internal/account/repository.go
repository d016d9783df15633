// Package account owns account records: registration, profile updates,
// credential hashing and the login lockout bookkeeping.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safar/storefront-core/internal/config"
	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
)

type Draft struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      models.Role
}

// Patch lists the fields to change; nil means unchanged.
type Patch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
	Role      *models.Role
	Active    *bool
}

type Repository struct {
	backend      storage.Backend
	logger       *slog.Logger
	cost         int
	maxAttempts  int
	lockDuration time.Duration
	now          func() time.Time
}

func NewRepository(backend storage.Backend, cfg config.SecurityConfig, logger *slog.Logger) *Repository {
	r := &Repository{
		backend:      backend,
		logger:       logger.With("component", "account"),
		cost:         cfg.BcryptCost,
		maxAttempts:  cfg.MaxLoginAttempts,
		lockDuration: cfg.LockDuration,
		now:          models.Now,
	}
	if r.cost < MinBcryptCost {
		r.cost = MinBcryptCost
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 5
	}
	if r.lockDuration <= 0 {
		r.lockDuration = 2 * time.Hour
	}
	return r
}

// SetClock replaces the time source used for lockout decisions.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *Repository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	account, err := r.backend.GetAccount(ctx, id)
	if err != nil {
		return nil, r.fail(ctx, "get account", id, err)
	}
	return account, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	account, err := r.backend.GetAccountByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, r.fail(ctx, "get account by email", "", err)
	}
	return account, nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (r *Repository) Create(ctx context.Context, d Draft) (*models.Account, error) {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Email = NormalizeEmail(d.Email)
	if d.Role == "" {
		d.Role = models.RoleCustomer
	}

	verr := models.NewValidationError()
	if d.FirstName == "" {
		verr.Add("firstName", "is required")
	}
	if d.LastName == "" {
		verr.Add("lastName", "is required")
	}
	if !validEmail(d.Email) {
		verr.Add("email", "is not a valid address")
	}
	if len(d.Password) < MinPasswordLength {
		verr.Add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if !d.Role.Valid() {
		verr.Add("role", "must be customer, admin or moderator")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	hash, err := hashPassword(d.Password, r.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := models.Now()
	account := &models.Account{
		ID:           uuid.NewString(),
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Email:        d.Email,
		PasswordHash: hash,
		Role:         d.Role,
		Active:       true,
		Cart:         []models.CartEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := r.backend.InsertAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrConstraint) {
			return nil, emailTaken()
		}
		return nil, r.fail(ctx, "create account", account.ID, err)
	}

	r.logger.InfoContext(ctx, "account created", "account_id", account.ID, "role", account.Role)
	return account, nil
}

func emailTaken() error {
	return models.NewValidationError(models.FieldError{Field: "email", Message: "is already registered"})
}

// Update applies patch, retrying when a concurrent writer got there first.
func (r *Repository) Update(ctx context.Context, id string, patch Patch) (*models.Account, error) {
	var hash string
	if patch.Password != nil {
		if len(*patch.Password) < MinPasswordLength {
			return nil, models.NewValidationError(models.FieldError{
				Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength),
			})
		}
		var err error
		if hash, err = hashPassword(*patch.Password, r.cost); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	var updated *models.Account
	err := r.mutate(ctx, "update account", id, func(a *models.Account) error {
		verr := models.NewValidationError()
		if patch.FirstName != nil {
			if v := strings.TrimSpace(*patch.FirstName); v != "" {
				a.FirstName = v
			} else {
				verr.Add("firstName", "is required")
			}
		}
		if patch.LastName != nil {
			if v := strings.TrimSpace(*patch.LastName); v != "" {
				a.LastName = v
			} else {
				verr.Add("lastName", "is required")
			}
		}
		if patch.Email != nil {
			if v := NormalizeEmail(*patch.Email); validEmail(v) {
				a.Email = v
			} else {
				verr.Add("email", "is not a valid address")
			}
		}
		if patch.Role != nil {
			if patch.Role.Valid() {
				a.Role = *patch.Role
			} else {
				verr.Add("role", "must be customer, admin or moderator")
			}
		}
		if patch.Active != nil {
			a.Active = *patch.Active
		}
		if hash != "" {
			a.PasswordHash = hash
		}
		updated = a
		return verr.OrNil()
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Save writes account back if its version is still current. Services that
// keep their own read-modify-write loop, such as the cart, use it.
func (r *Repository) Save(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = models.Now()
	if err := r.backend.UpdateAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrConstraint) {
			return emailTaken()
		}
		return r.fail(ctx, "save account", account.ID, err)
	}
	return nil
}

// Delete removes the account and returns what was removed. Admin accounts
// are never deleted.
func (r *Repository) Delete(ctx context.Context, id string) (*models.Account, error) {
	account, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.Role == models.RoleAdmin {
		return nil, models.ErrAdminDelete
	}

	if err := r.backend.DeleteAccount(ctx, id); err != nil {
		return nil, r.fail(ctx, "delete account", id, err)
	}

	r.logger.InfoContext(ctx, "account deleted", "account_id", id)
	return account, nil
}

// mutate runs a read-modify-write of one account under optimistic locking.
func (r *Repository) mutate(ctx context.Context, op, id string, fn func(*models.Account) error) error {
	err := storage.RetryOnConflict(ctx, storage.DefaultMaxAttempts, func() error {
		account, err := r.backend.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(account); err != nil {
			return err
		}
		account.UpdatedAt = models.Now()
		return r.backend.UpdateAccount(ctx, account)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrConstraint):
		return emailTaken()
	}
	return r.fail(ctx, op, id, err)
}

func (r *Repository) fail(ctx context.Context, op, id string, err error) error {
	if errors.Is(err, storage.ErrUnavailable) {
		r.logger.ErrorContext(ctx, "storage unavailable", "op", op, "account_id", id, "error", err)
	}
	return storage.Domain(err)
}
