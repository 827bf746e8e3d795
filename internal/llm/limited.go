package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// limitedProvider wraps a Provider with a token-bucket rate limit on
// outbound calls. The per-device daily quota caps how often a device may use
// the classifier; this caps how hard concurrent requests collectively hit
// the upstream API.
type limitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// Limited wraps p so completions proceed at most qps requests per second
// with the given burst. qps <= 0 returns p unchanged.
func Limited(p Provider, qps float64, burst int) Provider {
	if qps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &limitedProvider{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
	}
}

func (l *limitedProvider) Name() string {
	return l.inner.Name()
}

// Complete waits for a rate token, honoring ctx's deadline, then delegates.
func (l *limitedProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return l.inner.Complete(ctx, prompt, opts)
}
