package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// RendererChecker checks page renderer availability.
type RendererChecker interface {
	HealthCheck(ctx context.Context) error
}
