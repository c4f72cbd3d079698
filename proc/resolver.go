package proc

import "context"

// Resolver turns a queued track into media the sink can play.
type Resolver interface {
	Resolve(ctx context.Context, t Track) (Media, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(ctx context.Context, t Track) (Media, error)

func (f ResolverFunc) Resolve(ctx context.Context, t Track) (Media, error) {
	return f(ctx, t)
}
