package quota

import (
	"context"

	"github.com/xraph/quota/types"
)

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller. The engine
// trusts this value completely; authenticating it is the host's job.
func WithCaller(ctx context.Context, p types.Principal) context.Context {
	return context.WithValue(ctx, callerKey{}, p)
}

// CallerFrom returns the caller stored by WithCaller.
func CallerFrom(ctx context.Context) (types.Principal, bool) {
	p, ok := ctx.Value(callerKey{}).(types.Principal)
	return p, ok && !p.IsZero()
}

func callerOf(ctx context.Context) (types.Principal, error) {
	p, ok := CallerFrom(ctx)
	if !ok {
		return "", ErrUnauthorized
	}
	return p, nil
}
