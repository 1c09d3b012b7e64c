package util

import (
	"github.com/aquilax/go-perlin"
)

// NoiseField двумерное поле шума Перлина для одного сида.
// Каждый мир получает своё поле, глобального состояния нет.
type NoiseField struct {
	perlin *perlin.Perlin
	scale  float64
}

// NewNoiseField создаёт поле шума с указанным сидом и масштабом координат
func NewNoiseField(seed int64, scale float64) *NoiseField {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &NoiseField{
		perlin: perlin.NewPerlin(alpha, beta, n, seed),
		scale:  scale,
	}
}

// At возвращает значение шума в точке (от 0 до 1)
func (f *NoiseField) At(x, y int) float64 {
	// Получаем значение шума (от -1 до 1)
	noise := f.perlin.Noise2D(float64(x)*f.scale, float64(y)*f.scale)

	// Преобразуем в диапазон от 0 до 1
	v := (noise + 1.0) / 2.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
