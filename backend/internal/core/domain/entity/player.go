package entity

// Identity идентификатор подключения клиента, выдается транспортом
type Identity string

// Player запись об игроке. Переживает переподключение: ID и имя
// сохраняются, пока игрок находится в списке вышедших.
type Player struct {
	Identity Identity
	ID       PlayerID
	Name     string
}
