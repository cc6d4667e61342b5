package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorRoundTrip(t *testing.T) {
	actor := Actor{CompanyID: 1, BranchID: 2, UserID: 3}
	ctx := ContextWithActor(context.Background(), actor)

	got, ok := ActorFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, actor, got)
}

func TestActorFromContextMissing(t *testing.T) {
	got, ok := ActorFromContext(context.Background())
	require.False(t, ok)
	require.Equal(t, Actor{}, got)
}
