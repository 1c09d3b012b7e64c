package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoiseFieldDeterministicAndBounded(t *testing.T) {
	a := NewNoiseField(42, 0.35)
	b := NewNoiseField(42, 0.35)

	for y := 0; y < 7; y++ {
		for x := 0; x < 7; x++ {
			v := a.At(x, y)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
			assert.Equal(t, v, b.At(x, y), "Одинаковый сид должен давать одинаковое поле")
		}
	}
}
