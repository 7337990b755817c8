package health

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRunAll_AllOK(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("layer", func(ctx context.Context) Status { return StatusOK })
	c.Register("slack", func(ctx context.Context) Status { return StatusOK })

	results := c.RunAll(context.Background())
	assert.Len(t, results, 2)
	assert.Equal(t, StatusOK, results["layer"])
	assert.True(t, c.IsReady(context.Background()))
}

func TestIsReady_DownDependency(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("layer", func(ctx context.Context) Status { return StatusDown })
	assert.False(t, c.IsReady(context.Background()))
}

func TestIsReady_DegradedStillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("slack", func(ctx context.Context) Status { return StatusDegraded })
	assert.True(t, c.IsReady(context.Background()))
}

func TestRunAll_Empty(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.Empty(t, c.RunAll(context.Background()))
	assert.True(t, c.IsReady(context.Background()))
}
