package authstate_test

import (
	"testing"
	"time"

	"github.com/nauthd/nauth/server/authstate"
	"github.com/stretchr/testify/require"
)

func TestUpsertSweepsExpiredStates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := authstate.NewInMemoryRepo(10*time.Minute,
		authstate.WithNowTime(func() time.Time { return now }))

	require.NoError(t, repo.Upsert("abandoned", &authstate.FlowState{Nonce: "n1", CreatedAt: now}))

	now = now.Add(11 * time.Minute)
	require.NoError(t, repo.Upsert("fresh", &authstate.FlowState{Nonce: "n2", CreatedAt: now}))

	_, err := repo.Get("abandoned")
	require.Error(t, err)

	flow, err := repo.Get("fresh")
	require.NoError(t, err)
	require.Equal(t, "n2", flow.Nonce)
}

func TestUpsertKeepsUnexpiredStates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := authstate.NewInMemoryRepo(10*time.Minute,
		authstate.WithNowTime(func() time.Time { return now }))

	require.NoError(t, repo.Upsert("first", &authstate.FlowState{Nonce: "n1", CreatedAt: now}))

	now = now.Add(5 * time.Minute)
	require.NoError(t, repo.Upsert("second", &authstate.FlowState{Nonce: "n2", CreatedAt: now}))

	flow, err := repo.Get("first")
	require.NoError(t, err)
	require.Equal(t, "n1", flow.Nonce)
}
