package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// BackendChecker checks an upstream service.
type BackendChecker interface {
	HealthCheck(ctx context.Context) error
}
