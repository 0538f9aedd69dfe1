// internal/service/accounts.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/google/uuid"
)

// Actor is the caller of a service operation.
type Actor struct {
	UserID uuid.UUID
	Email  string
	// Service is set for service_role callers, which bypass ownership checks.
	Service bool
	// ClaimsJSON is forwarded to Postgres for row-level security.
	ClaimsJSON string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ensurePersonalAccount returns the user's personal account, creating it and
// the owner membership on first use.
func ensurePersonalAccount(ctx context.Context, store *repository.Store, userID uuid.UUID, email string) (*model.Account, error) {
	account, err := store.Accounts.FindPersonalByUser(ctx, userID)
	if err == nil {
		if account.Email == "" && email != "" {
			account.Email = normalizeEmail(email)
			if err := store.Accounts.Update(ctx, account); err != nil {
				return nil, err
			}
		}
		return account, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	name := email
	if name == "" {
		name = userID.String()
	}
	account = &model.Account{
		ID:                 userID,
		Name:               name,
		Email:              normalizeEmail(email),
		IsPersonalAccount:  true,
		PrimaryOwnerUserID: userID,
	}
	if err := store.Accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("creating personal account: %w", err)
	}
	if err := store.Accounts.AddMember(ctx, &model.AccountMembership{
		AccountID: account.ID, UserID: userID, Role: model.RoleOwner,
	}); err != nil {
		return nil, err
	}
	return account, nil
}

// findOrCreateTeam returns the oldest team the user owns or opens a new one.
func findOrCreateTeam(ctx context.Context, store *repository.Store, ownerID uuid.UUID, email, name string) (*model.Account, error) {
	account, err := store.Accounts.FindTeamOwnedBy(ctx, ownerID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	account = &model.Account{
		Name:               name,
		Email:              normalizeEmail(email),
		PrimaryOwnerUserID: ownerID,
	}
	if err := store.Accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("creating team account: %w", err)
	}
	if err := store.Accounts.AddMember(ctx, &model.AccountMembership{
		AccountID: account.ID, UserID: ownerID, Role: model.RoleOwner,
	}); err != nil {
		return nil, err
	}
	return account, nil
}

// findOrCreateUnclaimed returns the holding account for a guest checkout.
func findOrCreateUnclaimed(ctx context.Context, store *repository.Store, email, name string) (*model.Account, error) {
	account, err := store.Accounts.FindUnclaimedByEmail(ctx, email)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	account = &model.Account{Name: name, Email: normalizeEmail(email)}
	if err := store.Accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("creating guest account: %w", err)
	}
	return account, nil
}

// claimAccounts hands every guest account opened for the user's email over
// to the user.
func claimAccounts(ctx context.Context, store *repository.Store, userID uuid.UUID, email string) ([]*model.Account, error) {
	if email == "" {
		return nil, nil
	}
	accounts, err := store.Accounts.ListUnclaimedByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		account.PrimaryOwnerUserID = userID
		if err := store.Accounts.Update(ctx, account); err != nil {
			return nil, err
		}
		if err := store.Accounts.AddMember(ctx, &model.AccountMembership{
			AccountID: account.ID, UserID: userID, Role: model.RoleOwner,
		}); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

// requireOwner checks that actor owns the account.
func requireOwner(ctx context.Context, store *repository.Store, actor Actor, accountID uuid.UUID) (*model.Account, error) {
	if actor.UserID == uuid.Nil && !actor.Service {
		return nil, domain.ErrUnauthorized
	}
	account, err := store.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if actor.Service || account.PrimaryOwnerUserID == actor.UserID {
		return account, nil
	}

	m, err := store.Accounts.FindMembership(ctx, accountID, actor.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotAccountOwner
		}
		return nil, err
	}
	if m.Role != model.RoleOwner {
		return nil, domain.ErrNotAccountOwner
	}
	return account, nil
}
