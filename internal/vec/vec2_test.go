package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec2Manhattan(t *testing.T) {
	assert.Equal(t, 3, Vec2{0, 0}.ManhattanTo(Vec2{3, 0}))
	assert.Equal(t, 5, Vec2{4, 1}.ManhattanTo(Vec2{1, 3}))
	assert.Equal(t, 0, Vec2{2, 2}.ManhattanTo(Vec2{2, 2}))
}

func TestVec2InSquare(t *testing.T) {
	assert.True(t, Vec2{0, 0}.InSquare(7))
	assert.True(t, Vec2{6, 6}.InSquare(7))
	assert.False(t, Vec2{0, -1}.InSquare(7))
	assert.False(t, Vec2{7, 3}.InSquare(7))
	assert.Equal(t, Vec2{1, -1}, Vec2{1, 0}.Add(Vec2{0, -1}))
}
