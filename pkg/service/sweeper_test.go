package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livekit/admission-server/pkg/service"
)

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	store := service.NewLocalWaitingStore()

	conf := testConfig()
	conf.WaitingRoom.MaxPendingAge = 20 * time.Millisecond
	conf.WaitingRoom.SweepInterval = 10 * time.Millisecond

	_, err := store.Enqueue(ctx, "standup", "forgotten")
	require.NoError(t, err)

	sweeper := service.NewSweeper(conf, store)
	sweeper.Start()
	defer sweeper.Stop()

	assert.Eventually(t, func() bool {
		pending, err := store.ListPending(ctx, "standup")
		return err == nil && len(pending) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSweeperDisabled(t *testing.T) {
	ctx := context.Background()
	store := service.NewLocalWaitingStore()

	conf := testConfig()
	conf.WaitingRoom.MaxPendingAge = 0
	conf.WaitingRoom.SweepInterval = 10 * time.Millisecond

	_, err := store.Enqueue(ctx, "standup", "patient")
	require.NoError(t, err)

	sweeper := service.NewSweeper(conf, store)
	sweeper.Start()
	defer sweeper.Stop()

	time.Sleep(50 * time.Millisecond)
	pending, err := store.ListPending(ctx, "standup")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
