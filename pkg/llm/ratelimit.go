package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedCollaborator wraps another collaborator behind a token
// bucket, blocking each Invoke until the limiter admits it or the
// context is cancelled.
type RateLimitedCollaborator struct {
	inner   Collaborator
	limiter *rate.Limiter
}

// RateLimited wraps collab with a limiter of rps requests per second and
// the given burst. Non-positive rps returns collab unchanged.
func RateLimited(collab Collaborator, rps float64, burst int) Collaborator {
	if rps <= 0 {
		return collab
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedCollaborator{
		inner:   collab,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Model returns the wrapped collaborator's model identifier.
func (r *RateLimitedCollaborator) Model() string { return r.inner.Model() }

// Invoke waits for limiter admission, then delegates.
func (r *RateLimitedCollaborator) Invoke(ctx context.Context, turns []TurnMessage) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, NewCollaboratorError("ratelimit", err)
	}
	return r.inner.Invoke(ctx, turns)
}
