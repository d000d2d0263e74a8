package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := V(3, 4).Normalize()
	assert.InDelta(t, 0.6, n.X, 1e-9)
	assert.InDelta(t, 0.8, n.Y, 1e-9)
	assert.True(t, Vec2{}.Normalize().IsZero())
}

func TestSign(t *testing.T) {
	assert.Equal(t, 1.0, Sign(0.5, 0.1))
	assert.Equal(t, -1.0, Sign(-0.5, 0.1))
	assert.Equal(t, 0.0, Sign(0.05, 0.1))
}
