package pg

import (
	"context"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports a database as healthy when a ping succeeds.
type HealthChecker struct {
	pinger Pinger
}

func NewHealthChecker(p Pinger) *HealthChecker {
	return &HealthChecker{
		pinger: p,
	}
}

func (hc *HealthChecker) Healthy(ctx context.Context) bool {
	if hc.pinger == nil {
		return false
	}

	return hc.pinger.Ping(ctx) == nil
}
