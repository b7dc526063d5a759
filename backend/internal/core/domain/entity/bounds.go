package entity

import "github.com/go-gl/mathgl/mgl64"

// ClampToWorld удерживает центр окружности радиуса radius внутри
// [radius, worldSize - radius] по каждой оси. Если сущность шире мира,
// она ставится в центр.
func ClampToWorld(pos mgl64.Vec2, radius, worldSize float64) mgl64.Vec2 {
	return mgl64.Vec2{
		clampAxis(pos.X(), radius, worldSize),
		clampAxis(pos.Y(), radius, worldSize),
	}
}

func clampAxis(v, radius, worldSize float64) float64 {
	lo, hi := radius, worldSize-radius
	if lo > hi {
		return worldSize / 2
	}
	if v != v { // NaN
		return lo
	}
	return mgl64.Clamp(v, lo, hi)
}
