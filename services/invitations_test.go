package services

import (
	"context"
	"testing"
	"time"

	"github.com/aj9599/raas-platform/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newInvitationService(t *testing.T) (*InvitationService, *time.Time) {
	t.Helper()
	db := newTestDB(t)
	svc := NewInvitationService(db, zap.NewNop(), 48*time.Hour)
	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return svc, &clock
}

func TestInvitation_AcceptCreatesAccount(t *testing.T) {
	svc, _ := newInvitationService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, testTenant, 1, InvitationInput{Email: " Maria@Example.com ", Role: "operator"})
	require.NoError(t, err)
	assert.Equal(t, "maria@example.com", inv.Email)
	assert.Equal(t, models.InvitationPending, inv.Status)
	assert.NotEmpty(t, inv.Token)

	found, err := svc.Lookup(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, found.ID)

	_, err = svc.Accept(ctx, AcceptInput{Token: inv.Token, FirstName: "Maria", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	account, err := svc.Accept(ctx, AcceptInput{Token: inv.Token, FirstName: "Maria", LastName: "Silva", Password: "s3nha-forte"})
	require.NoError(t, err)
	assert.Equal(t, "maria@example.com", account.Email)
	assert.Equal(t, "operator", account.Role)
	assert.Equal(t, "pt", account.Language)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("s3nha-forte")))

	accepted, err := svc.Get(ctx, testTenant, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationAccepted, accepted.Status)
	assert.NotNil(t, accepted.AcceptedAt)

	_, err = svc.Accept(ctx, AcceptInput{Token: inv.Token, FirstName: "Maria", Password: "s3nha-forte"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Create(ctx, testTenant, 1, InvitationInput{Email: "maria@example.com", Role: "operator"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestInvitation_Validation(t *testing.T) {
	svc, _ := newInvitationService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, testTenant, 1, InvitationInput{Email: "not-an-email", Role: "operator"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, testTenant, 1, InvitationInput{Email: "a@example.com", Role: "owner"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, testTenant, 1, InvitationInput{Email: "a@example.com", Role: "customer"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, testTenant, 1, InvitationInput{Email: "a@example.com", Role: "customer", CustomerID: lo.ToPtr(42)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	customer := seedCustomer(t, svc.db, "Cliente", "compensation", 0)
	inv, err := svc.Create(ctx, testTenant, 1, InvitationInput{Email: "a@example.com", Role: "customer", CustomerID: &customer})
	require.NoError(t, err)
	require.NotNil(t, inv.CustomerID)
	assert.Equal(t, customer, *inv.CustomerID)

	_, err = svc.Create(ctx, testTenant, 1, InvitationInput{Email: "a@example.com", Role: "operator"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.Create(ctx, testTenant, 1, InvitationInput{Email: "admin@raas.local", Role: "admin"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestInvitation_AcceptForRemovedCustomer(t *testing.T) {
	svc, _ := newInvitationService(t)
	ctx := context.Background()

	customer := seedCustomer(t, svc.db, "Cliente", "compensation", 0)
	inv, err := svc.Create(ctx, testTenant, 1, InvitationInput{Email: "cliente@example.com", Role: "customer", CustomerID: &customer})
	require.NoError(t, err)

	_, err = svc.db.Exec(`DELETE FROM customers WHERE id = ?`, customer)
	require.NoError(t, err)

	_, err = svc.Accept(ctx, AcceptInput{Token: inv.Token, FirstName: "Ana", Password: "s3nha-forte"})
	assert.ErrorIs(t, err, ErrConflict)

	still, err := svc.Get(ctx, testTenant, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationPending, still.Status)
}

func TestInvitation_RevokeAndResend(t *testing.T) {
	svc, clock := newInvitationService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, testTenant, 1, InvitationInput{Email: "joao@example.com", Role: "admin"})
	require.NoError(t, err)

	revoked, err := svc.Revoke(ctx, testTenant, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationRevoked, revoked.Status)

	_, err = svc.Revoke(ctx, testTenant, inv.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Resend(ctx, testTenant, inv.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Lookup(ctx, inv.Token)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	second, err := svc.Create(ctx, testTenant, 1, InvitationInput{Email: "joao@example.com", Role: "admin"})
	require.NoError(t, err)

	*clock = clock.Add(72 * time.Hour)
	_, err = svc.Lookup(ctx, second.Token)
	assert.ErrorIs(t, err, ErrExpired)
	expired, err := svc.Get(ctx, testTenant, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationExpired, expired.Status)

	resent, err := svc.Resend(ctx, testTenant, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationPending, resent.Status)
	assert.NotEqual(t, second.Token, resent.Token)
	assert.True(t, resent.ExpiresAt.After(*clock))

	require.NoError(t, svc.Delete(ctx, testTenant, second.ID))
	assert.ErrorIs(t, svc.Delete(ctx, testTenant, second.ID), ErrNotFound)
}

func TestInvitation_ExpireDue(t *testing.T) {
	svc, clock := newInvitationService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, testTenant, 1, InvitationInput{Email: "one@example.com", Role: "operator"})
	require.NoError(t, err)
	*clock = clock.Add(24 * time.Hour)
	_, err = svc.Create(ctx, testTenant, 1, InvitationInput{Email: "two@example.com", Role: "operator"})
	require.NoError(t, err)

	*clock = clock.Add(25 * time.Hour)
	n, err := svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := svc.List(ctx, testTenant, models.ListParams{Status: models.InvitationPending})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "two@example.com", list[0].Email)
}
