package arena

import (
	"x-arena/backend/internal/core/domain/entity"
	"x-arena/backend/internal/core/domain/service"
)

// ArenaPort точки входа ядра симуляции для транспорта и планировщика
type ArenaPort interface {
	// OnPlayerConnect регистрирует подключение клиента
	OnPlayerConnect(identity entity.Identity) (entity.Player, error)

	// OnPlayerDisconnect удаляет сущности игрока
	OnPlayerDisconnect(identity entity.Identity) error

	// OnPlayerJoin создает начальную сущность игрока
	OnPlayerJoin(identity entity.Identity, name string) (entity.EntityID, error)

	// SubmitInput проверяет и сохраняет ввод клиента
	SubmitInput(identity entity.Identity, params service.InputParams) (service.PlayerInput, error)

	// OnFoodSpawnTick тик спавна еды
	OnFoodSpawnTick() (int, error)

	// OnMovementTick тик движения или физики
	OnMovementTick() (service.TickReport, error)

	// Snapshot согласованный снимок мира
	Snapshot() service.WorldSnapshot
}

var _ ArenaPort = (*service.ArenaService)(nil)
