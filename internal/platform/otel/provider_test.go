package otel

import (
	"context"
	"testing"
)

func TestSetupDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("DAL_OTEL_ENDPOINT", "")

	shutdown, err := Setup(context.Background(), "dal-test")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupDisabledByFlag(t *testing.T) {
	t.Setenv("DAL_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("DAL_OTEL_ENABLED", "false")

	shutdown, err := Setup(context.Background(), "dal-test")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
