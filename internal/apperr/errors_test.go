package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
)

func TestNew(t *testing.T) {
	err := apperr.NewConfiguration("number_of_runs must be at least 1")

	if err.Error() != "number_of_runs must be at least 1" {
		t.Errorf("expected message, got %q", err.Error())
	}
	if err.Unwrap() != nil {
		t.Errorf("expected nil unwrap, got %v", err.Unwrap())
	}
	if err.Kind != apperr.KindConfiguration {
		t.Errorf("expected configuration kind, got %s", err.Kind)
	}
}

func TestWrap(t *testing.T) {
	inner := fmt.Errorf("dial tcp: refused")
	err := apperr.Wrap(apperr.KindConnection, "all connection attempts failed", inner)

	if err.Error() != "all connection attempts failed: dial tcp: refused" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to return inner error")
	}
}

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("run: %w", apperr.NewInvalidState("collector is not started"))

	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatal("errors.Is should match the invalid state sentinel through wrapping")
	}
	if errors.Is(err, apperr.ErrConfiguration) {
		t.Fatal("errors.Is should not match a different kind")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"timeout", apperr.Wrap(apperr.KindTimeout, "statement timeout", errors.New("57014")), apperr.KindTimeout},
		{"double wrapped", fmt.Errorf("a: %w", fmt.Errorf("b: %w", apperr.ErrTransient)), apperr.KindTransient},
		{"plain", errors.New("boom"), apperr.KindUnknown},
		{"nil", nil, apperr.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apperr.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !apperr.IsRetryable(apperr.Wrap(apperr.KindTransient, "deadlock", nil)) {
		t.Error("transient errors should be retryable")
	}
	if apperr.IsRetryable(apperr.ErrTimeout) {
		t.Error("timeouts must not be retried")
	}
}
