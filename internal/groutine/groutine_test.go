package groutine

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGo_NamesGoroutine(t *testing.T) {
	type result struct {
		name  string
		label string
	}
	done := make(chan result, 1)

	Go(nil, "session-actor", func(ctx context.Context) { //nolint:staticcheck // nil parent is supported
		label, _ := pprof.Label(ctx, "goroutine_name")
		done <- result{name: GetName(ctx), label: label}
	})

	r := <-done
	assert.Equal(t, "session-actor", r.name)
	assert.Equal(t, "session-actor", r.label)
}

func TestGetName_Unnamed(t *testing.T) {
	assert.Equal(t, "", GetName(context.Background()))
	assert.Equal(t, "", GetName(nil)) //nolint:staticcheck // nil context is supported
}
