package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurrentActor(t *testing.T) {
	ctx := context.Background()

	require.Equal(t, Actor{}, CurrentActor(ctx))
	_, ok := ActorFromContext(ctx)
	require.False(t, ok)

	actor := Actor{Key: "flk_a1b2", Name: "ops", Customer: "CUST-0001", Roles: []string{"operator"}}
	ctx = WithActor(ctx, actor)

	require.Equal(t, actor, CurrentActor(ctx))
	got, ok := ActorFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, actor, got)
}

func TestActorHasRole(t *testing.T) {
	actor := Actor{Roles: []string{"admin", "operator"}}
	require.True(t, actor.HasRole("operator"))
	require.False(t, actor.HasRole("viewer"))
	require.False(t, Actor{}.HasRole("admin"))
}
