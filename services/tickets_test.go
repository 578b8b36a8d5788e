package services

import (
	"context"
	"testing"

	"github.com/aj9599/raas-platform/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTickets_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	notifications := NewNotificationService(db, zap.NewNop(), nil)
	svc := NewTicketService(db, zap.NewNop(), newTestNumbers(t), notifications)

	customerID := seedCustomer(t, db, "Padaria", "compensation", 0)
	customerAccount := seedAccount(t, db, "cliente@padaria.com", "customer", &customerID)
	operator := seedAccount(t, db, "op@raas.local", "operator", nil)

	customer := Author{AccountID: customerAccount, CustomerID: &customerID}
	staff := Author{AccountID: operator, Staff: true}

	ticket, err := svc.Create(ctx, testTenant, customer, TicketInput{
		Subject: "Fatura com valor errado", Category: "billing", Body: "O valor de março está alto.",
	})
	require.NoError(t, err)
	assert.Regexp(t, `^TCK-`, ticket.Number)
	assert.Equal(t, models.TicketOpen, ticket.Status)
	require.NotNil(t, ticket.CustomerID)
	assert.Equal(t, customerID, *ticket.CustomerID)
	assert.Len(t, ticket.Messages, 1)

	// admin (seeded) and operator are told about the new ticket
	n, err := notifications.UnreadCount(ctx, operator)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assigned, err := svc.Assign(ctx, testTenant, ticket.ID, staff, &operator)
	require.NoError(t, err)
	assert.Equal(t, models.TicketInProgress, assigned.Status)

	_, err = svc.Assign(ctx, testTenant, ticket.ID, staff, &customerAccount)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddMessage(ctx, testTenant, ticket.ID, staff, "Conferindo a leitura.", true)
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, testTenant, ticket.ID, customer, "Obrigado", true)
	assert.ErrorIs(t, err, ErrInvalidInput)

	seenByCustomer, err := svc.Get(ctx, testTenant, ticket.ID, customer)
	require.NoError(t, err)
	assert.Len(t, seenByCustomer.Messages, 1)
	seenByStaff, err := svc.Get(ctx, testTenant, ticket.ID, staff)
	require.NoError(t, err)
	assert.Len(t, seenByStaff.Messages, 2)

	resolved, err := svc.UpdateStatus(ctx, testTenant, ticket.ID, staff, models.TicketResolved)
	require.NoError(t, err)
	assert.NotNil(t, resolved.ResolvedAt)

	// customer reply reopens
	reopened, err := svc.AddMessage(ctx, testTenant, ticket.ID, customer, "Ainda não resolveu.", false)
	require.NoError(t, err)
	assert.Equal(t, models.TicketOpen, reopened.Status)
	assert.Nil(t, reopened.ResolvedAt)

	_, err = svc.UpdateStatus(ctx, testTenant, ticket.ID, staff, models.TicketClosed)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, testTenant, ticket.ID, staff, models.TicketOpen)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.AddMessage(ctx, testTenant, ticket.ID, customer, "Olá?", false)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	opened, err := notifications.List(ctx, customerAccount, true, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, opened)
}

func TestTickets_CustomerScope(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewTicketService(db, zap.NewNop(), newTestNumbers(t), NewNotificationService(db, zap.NewNop(), nil))

	c1 := seedCustomer(t, db, "Cliente Um", "compensation", 0)
	c2 := seedCustomer(t, db, "Cliente Dois", "compensation", 0)
	a1 := Author{AccountID: seedAccount(t, db, "um@example.com", "customer", &c1), CustomerID: &c1}
	a2 := Author{AccountID: seedAccount(t, db, "dois@example.com", "customer", &c2), CustomerID: &c2}

	ticket, err := svc.Create(ctx, testTenant, a1, TicketInput{Subject: "Dúvida", Body: "Como leio a fatura?"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, testTenant, a2, TicketInput{Subject: "Outra", Body: "Oi", CustomerID: &c1})
	require.NoError(t, err)

	_, err = svc.Get(ctx, testTenant, ticket.ID, a2)
	assert.ErrorIs(t, err, ErrNotFound)

	page, err := svc.List(ctx, testTenant, a1, models.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = svc.List(ctx, testTenant, Author{AccountID: 1, Staff: true}, models.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	_, err = svc.Create(ctx, testTenant, a1, TicketInput{Subject: "x", Body: "y", Priority: "critical"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, testTenant, a1, TicketInput{Subject: " ", Body: "y"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
