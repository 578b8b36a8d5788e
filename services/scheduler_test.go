package services

import (
	"context"
	"testing"
	"time"

	"github.com/aj9599/raas-platform/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_RunOnce(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Generate(ctx, testTenant, 1, InvoiceRequest{
		CustomerID: f.customerID, InstallationIDs: []int{f.unitA}, Period: "03/2024",
	})
	require.NoError(t, err)

	invitations := NewInvitationService(f.db, zap.NewNop(), 48*time.Hour)
	clock := time.Date(2024, 4, 20, 9, 0, 0, 0, time.UTC)
	invitations.now = func() time.Time { return clock }
	_, err = invitations.Create(ctx, testTenant, 1, InvitationInput{Email: "novo@example.com", Role: "operator"})
	require.NoError(t, err)

	scheduler := NewScheduler(f.svc, invitations, 0, zap.NewNop())
	assert.Equal(t, time.Hour, scheduler.interval)
	scheduler.now = func() time.Time { return clock }

	scheduler.RunOnce(ctx)
	got, err := f.svc.GetInvoice(ctx, testTenant, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceOverdue, got.Status)
	pending, err := invitations.List(ctx, testTenant, models.ListParams{Status: models.InvitationPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	clock = clock.Add(72 * time.Hour)
	scheduler.RunOnce(ctx)
	pending, err = invitations.List(ctx, testTenant, models.ListParams{Status: models.InvitationPending})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestScheduler_StopEndsLoop(t *testing.T) {
	f := newBillingFixture(t)
	scheduler := NewScheduler(f.svc, NewInvitationService(f.db, zap.NewNop(), time.Hour), time.Hour, zap.NewNop())

	done := make(chan struct{})
	go func() {
		scheduler.Start()
		close(done)
	}()
	scheduler.Stop()
	scheduler.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
