package physics

import "fmt"

// PhysicsConfig содержит настройки физического мира
type PhysicsConfig struct {
	// Timestep - фиксированный шаг симуляции в секундах
	Timestep float64

	// Gravity - ускорение свободного падения по оси Y
	Gravity float64

	// GroundEpsilon - порог вертикальной скорости для определения земли
	GroundEpsilon float64

	// Friction - трение тел игроков
	Friction float64

	// GroundFriction - трение земли и стен
	GroundFriction float64

	// Restitution - коэффициент отскока (0 для платформера)
	Restitution float64

	// MaxHorizontalSpeed - ограничение горизонтальной скорости (0 = без ограничения)
	MaxHorizontalSpeed float64

	// CapsuleAspect - половина высоты капсулы игрока относительно радиуса
	CapsuleAspect float64

	// WorldSize - сторона мира; по ней строятся земля и стены
	WorldSize float64

	// GroundThickness - толщина платформы земли под миром
	GroundThickness float64

	// Walls - добавлять стены и потолок по краям мира
	Walls bool
}

// DefaultPhysicsConfig возвращает конфигурацию по умолчанию
func DefaultPhysicsConfig() PhysicsConfig {
	return PhysicsConfig{
		Timestep:           1.0 / 50.0, // 50 Гц
		Gravity:            -9.81,
		GroundEpsilon:      0.1,
		Friction:           0.5,
		GroundFriction:     0.7,
		Restitution:        0.0,
		MaxHorizontalSpeed: 40.0,
		CapsuleAspect:      0.5,
		WorldSize:          1000,
		GroundThickness:    20,
		Walls:              true,
	}
}

// Validate проверяет настройки
func (c PhysicsConfig) Validate() error {
	if !(c.Timestep > 0) {
		return fmt.Errorf("physics timestep must be positive, got %v", c.Timestep)
	}
	if c.GroundEpsilon < 0 {
		return fmt.Errorf("ground epsilon must not be negative, got %v", c.GroundEpsilon)
	}
	if !(c.WorldSize > 0) {
		return fmt.Errorf("world size must be positive, got %v", c.WorldSize)
	}
	if c.CapsuleAspect < 0 {
		return fmt.Errorf("capsule aspect must not be negative, got %v", c.CapsuleAspect)
	}
	return nil
}
