package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
)

// Authenticate verifies credentials and keeps the lockout counters.
//
// Each failure increments loginAttempts; the failure that reaches the limit
// sets lockUntil. While the lock is open every attempt, correct or not, fails
// with *models.LockedError. The first failure after the lock expires starts
// counting again from 1. A success clears both fields.
func (r *Repository) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	email = NormalizeEmail(email)

	var (
		result  *models.Account
		outcome error
	)
	err := storage.RetryOnConflict(ctx, storage.DefaultMaxAttempts, func() error {
		result = nil
		account, err := r.backend.GetAccountByEmail(ctx, email)
		if errors.Is(err, storage.ErrNotFound) {
			outcome = models.ErrInvalidCredentials
			return nil
		}
		if err != nil {
			return err
		}

		now := r.now()
		if account.IsLocked(now) {
			outcome = &models.LockedError{Until: *account.LockUntil, Remaining: account.LockUntil.Sub(now)}
			return nil
		}

		ok, err := checkPassword(account.PasswordHash, password)
		if err != nil {
			return fmt.Errorf("verify password: %w", err)
		}

		if ok {
			outcome = nil
			if !account.Active {
				outcome = models.ErrAccountDisabled
			}
			result = account
			if account.LoginAttempts == 0 && account.LockUntil == nil {
				return nil
			}
			account.LoginAttempts = 0
			account.LockUntil = nil
			account.UpdatedAt = now
			return r.backend.UpdateAccount(ctx, account)
		}

		if account.LockUntil != nil {
			// The previous lock has expired.
			account.LoginAttempts = 1
			account.LockUntil = nil
		} else {
			account.LoginAttempts++
		}
		if account.LoginAttempts >= r.maxAttempts {
			until := now.Add(r.lockDuration)
			account.LockUntil = &until
		}
		account.UpdatedAt = now
		outcome = models.ErrInvalidCredentials
		return r.backend.UpdateAccount(ctx, account)
	})
	if err != nil {
		return nil, r.fail(ctx, "authenticate", "", err)
	}

	if outcome != nil {
		switch {
		case errors.Is(outcome, models.ErrAccountLocked):
			r.logger.WarnContext(ctx, "login rejected: account locked", "email", email)
		case errors.Is(outcome, models.ErrInvalidCredentials):
			r.logger.InfoContext(ctx, "login failed", "email", email)
		}
		return nil, outcome
	}
	return result, nil
}
