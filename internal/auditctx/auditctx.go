// Package auditctx carries who made a request, and from where, down to the audit log.
package auditctx

import "context"

// Actor describes the origin of a request. UserID and Email stay empty for anonymous
// callers such as login or password reset.
type Actor struct {
	UserID    string
	Email     string
	IPAddress string
	UserAgent string
}

// Anonymous reports whether no authenticated account is attached.
func (a Actor) Anonymous() bool {
	return a.UserID == "" && a.Email == ""
}

type actorKey struct{}

// WithActor stores actor on ctx, replacing any actor already present.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// WithRequest records the client address and user agent, keeping any account identity
// already stored on ctx.
func WithRequest(ctx context.Context, ip, userAgent string) context.Context {
	actor, _ := FromContext(ctx)
	actor.IPAddress = ip
	actor.UserAgent = userAgent
	return WithActor(ctx, actor)
}

// WithAccount attaches the authenticated account, keeping the request origin already
// stored on ctx.
func WithAccount(ctx context.Context, userID, email string) context.Context {
	actor, _ := FromContext(ctx)
	actor.UserID = userID
	actor.Email = email
	return WithActor(ctx, actor)
}

// FromContext extracts the actor stored on ctx.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
