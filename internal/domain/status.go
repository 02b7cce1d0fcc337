package domain

// SessionStatus — статус сессии диалога.
//
// Жизненный цикл:
//
//	active → handoff_ready → completed
//	       ↘ completed
//
// Значения — часть wire-формата и хранятся как есть.
type SessionStatus string

const (
	// SessionStatusActive — диалог идёт, runner продвигает курсор.
	SessionStatusActive SessionStatus = "active"

	// SessionStatusHandoffReady — бот собрал данные, нужно резюме для человека.
	SessionStatusHandoffReady SessionStatus = "handoff_ready"

	// SessionStatusCompleted — диалог завершён.
	SessionStatusCompleted SessionStatus = "completed"
)

// IsValid возвращает true для известных статусов.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusActive, SessionStatusHandoffReady, SessionStatusCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal возвращает true, если автономное продвижение остановлено.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusHandoffReady || s == SessionStatusCompleted
}

// CanTransitionTo проверяет, допустим ли переход статуса.
// Возврат в active невозможен; completed — финальный.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case SessionStatusActive:
		return next == SessionStatusHandoffReady || next == SessionStatusCompleted
	case SessionStatusHandoffReady:
		return next == SessionStatusCompleted
	default:
		return false
	}
}

// ParseSessionStatus парсит строку в SessionStatus.
// Неизвестные и пустые значения считаются active, как у ранее сохранённых сессий.
func ParseSessionStatus(s string) SessionStatus {
	switch SessionStatus(s) {
	case SessionStatusHandoffReady:
		return SessionStatusHandoffReady
	case SessionStatusCompleted:
		return SessionStatusCompleted
	default:
		return SessionStatusActive
	}
}

// EventType — тип события в журнале сессии.
// Значения — часть wire-формата и хранятся как есть.
type EventType string

const (
	// EventTypeUserMessage — сообщение пользователя.
	EventTypeUserMessage EventType = "user_message"

	// EventTypeBotMessage — реплика бота (автоматическая, для шагов text).
	EventTypeBotMessage EventType = "bot_message"

	// EventTypeSystem — служебное событие, курсор не двигает.
	EventTypeSystem EventType = "system"

	// EventTypeSystemHandoff — сигнал шага handoff.
	EventTypeSystemHandoff EventType = "system_handoff"
)

// IsValid возвращает true для известных типов событий.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeUserMessage, EventTypeBotMessage, EventTypeSystem, EventTypeSystemHandoff:
		return true
	default:
		return false
	}
}

// AdvancesSession возвращает true, если событие запускает runner.
func (t EventType) AdvancesSession() bool {
	return t == EventTypeUserMessage || t == EventTypeBotMessage || t == EventTypeSystemHandoff
}

// IsAutomatic возвращает true для событий, которые клиент отправляет сам
// при показе шага. Они идемпотентны по шагу: повтор для уже пройденного
// шага игнорируется.
func (t EventType) IsAutomatic() bool {
	return t == EventTypeBotMessage || t == EventTypeSystemHandoff
}
