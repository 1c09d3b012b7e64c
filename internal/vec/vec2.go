package vec

import "fmt"

// Vec2 представляет координаты клетки на сетке мира
type Vec2 struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add возвращает сумму векторов
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// ManhattanTo вычисляет манхэттенское расстояние до другой точки
func (v Vec2) ManhattanTo(other Vec2) int {
	return abs(v.X-other.X) + abs(v.Y-other.Y)
}

// InSquare проверяет, что точка лежит в квадрате [0,size-1]×[0,size-1]
func (v Vec2) InSquare(size int) bool {
	return v.X >= 0 && v.Y >= 0 && v.X < size && v.Y < size
}

func (v Vec2) String() string {
	return fmt.Sprintf("(%d,%d)", v.X, v.Y)
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
