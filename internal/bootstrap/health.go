package bootstrap

import (
	"context"
	"time"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

const healthCheckTimeout = 5 * time.Second

// Health probes every external dependency the app was built with.
func (a *App) Health(ctx context.Context) []domain.ComponentHealth {
	var out []domain.ComponentHealth

	out = append(out, probe(ctx, "postgres", func(ctx context.Context) (string, error) {
		return "reachable", a.db.PingContext(ctx)
	}))
	out = append(out, probe(ctx, "llm:"+a.provider.name, func(ctx context.Context) (string, error) {
		detail, err := a.provider.ping(ctx)
		if err != nil {
			return "", err
		}
		return a.provider.model + " (" + detail + ")", nil
	}))
	out = append(out, probe(ctx, "vector:"+a.Store.Backend(), func(ctx context.Context) (string, error) {
		// Any document id works; only reachability matters here.
		_, err := a.Store.Stats(ctx, domain.DocumentFilter("healthcheck"))
		if domain.IsKind(err, domain.ErrNotFound) {
			return "reachable, no stats support", nil
		}
		return "reachable", err
	}))
	if a.Queue != nil {
		out = append(out, probe(ctx, "nats", func(ctx context.Context) (string, error) {
			return "connected", a.Queue.Ping(ctx)
		}))
	}
	return out
}

func probe(ctx context.Context, name string, check func(context.Context) (string, error)) domain.ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	detail, err := check(ctx)
	if err != nil {
		return domain.ComponentHealth{Name: name, Detail: err.Error()}
	}
	return domain.ComponentHealth{Name: name, OK: true, Detail: detail}
}
