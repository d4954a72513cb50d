package shared

import "context"

// Actor identifies the authenticated principal performing an operation.
// Services take it as an explicit parameter instead of reading ambient state.
type Actor struct {
	Key      string
	Name     string
	Customer string
	Roles    []string
}

// System is the actor attached to internally generated documents, such as the
// dispatch auto-created by a customer transfer receipt.
var System = Actor{Key: "system", Name: "System"}

// HasRole reports whether the actor carries the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type actorContextKey struct{}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext retrieves the actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// CurrentActor retrieves the actor, returning the zero Actor when none is
// stored. Handlers behind the auth middleware can rely on it being populated.
func CurrentActor(ctx context.Context) Actor {
	actor, _ := ActorFromContext(ctx)
	return actor
}
