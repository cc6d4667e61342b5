package shared

import "context"

// Actor identifies the tenant and user performing an operation. Document
// workflows resolve it at the boundary and pass it down; the engine never
// reads authentication state itself.
type Actor struct {
	CompanyID int64
	BranchID  int64
	UserID    int64
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The second return is
// false when no actor was set; handlers treat that as missing tenant context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
