package service

import "errors"

var (
	// ErrPlayerNotFound операция требует запись игрока, а ее нет
	ErrPlayerNotFound = errors.New("player not found")

	// ErrUnknownPlayer ввод от неизвестного отправителя
	ErrUnknownPlayer = errors.New("input from unknown player")

	// ErrInputRateLimited ввод превысил допустимую частоту
	ErrInputRateLimited = errors.New("input rate limit exceeded")

	// ErrPhysicsRequired режим платформера без физического моста
	ErrPhysicsRequired = errors.New("platformer mode requires a physics bridge")
)
