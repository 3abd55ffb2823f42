package server

import "context"

type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

type OkHealthChecker struct {
}

func NewOkHealthChecker() *OkHealthChecker {
	return &OkHealthChecker{}
}

func (hc *OkHealthChecker) Healthy(ctx context.Context) bool {
	return true
}

// Checkers is healthy only when every member is. An empty set is healthy.
type Checkers []HealthChecker

func (cs Checkers) Healthy(ctx context.Context) bool {
	for _, c := range cs {
		if !c.Healthy(ctx) {
			return false
		}
	}
	return true
}
