package services

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnergyIngestor_HandleMessage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	energy := NewEnergyService(db, zap.NewNop())
	customer := seedCustomer(t, db, "Mercado", "compensation", 0)
	distributor := seedDistributor(t, db, "CPFL", 0.9)
	installation := seedInstallation(t, db, "UC-900", "consumer", distributor, customer)

	ingestor := NewEnergyIngestor(IngestorConfig{}, energy, zap.NewNop())
	payload := []byte(`{"installation_code":"UC-900","period":"03/2024","consumption":100,"received":90,"compensation":80}`)

	require.NoError(t, ingestor.HandleMessage(ctx, "raas/default/energy", payload))
	require.NoError(t, ingestor.HandleMessage(ctx, "raas/default/energy", payload))

	records, err := energy.ListRecords(ctx, testTenant, installation)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "mqtt", records[0].Source)
	assert.InDelta(t, 80, records[0].Compensation, 1e-9)

	assert.ErrorIs(t, ingestor.HandleMessage(ctx, "raas/energy", payload), ErrInvalidInput)
	assert.ErrorIs(t, ingestor.HandleMessage(ctx, "raas/default/energy", []byte(`{`)), ErrInvalidInput)
	assert.ErrorIs(t, ingestor.HandleMessage(ctx, "raas/default/energy", []byte(`{"period":"04/2024"}`)), ErrInvalidInput)
	assert.ErrorIs(t, ingestor.HandleMessage(ctx, "raas/other/energy", payload), ErrNotFound)

	overCompensated := []byte(`{"installation_code":"UC-900","period":"05/2024","consumption":10,"received":10,"compensation":50}`)
	assert.ErrorIs(t, ingestor.HandleMessage(ctx, "raas/default/energy", overCompensated), ErrInvalidInput)
}

func TestEnergyIngestor_StartFailsWhenBrokerNeverAnswers(t *testing.T) {
	// accepts TCP connections but never sends CONNACK
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	ingestor := NewEnergyIngestor(IngestorConfig{
		Broker:         "tcp://" + ln.Addr().String(),
		ClientID:       "test",
		ConnectTimeout: 300 * time.Millisecond,
	}, NewEnergyService(newTestDB(t), zap.NewNop()), zap.NewNop())

	require.Error(t, ingestor.Start())
	assert.False(t, ingestor.isRunning)
	ingestor.Stop()
}

func TestEnergyIngestor_StartFailsWhenBrokerDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ingestor := NewEnergyIngestor(IngestorConfig{
		Broker:         "tcp://" + addr,
		ClientID:       "test",
		ConnectTimeout: time.Second,
	}, NewEnergyService(newTestDB(t), zap.NewNop()), zap.NewNop())

	require.Error(t, ingestor.Start())
	assert.False(t, ingestor.isRunning)
}

func TestTenantFromTopic(t *testing.T) {
	slug, err := tenantFromTopic("raas/solar-sul/energy")
	require.NoError(t, err)
	assert.Equal(t, "solar-sul", slug)

	for _, topic := range []string{"raas//energy", "raas/a/b/energy", "raas/a/status"} {
		_, err := tenantFromTopic(topic)
		assert.Error(t, err, topic)
	}
}
