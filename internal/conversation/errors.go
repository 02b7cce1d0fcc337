package conversation

import "errors"

// Ошибки сервиса диалогов.
//
// Ошибки хранилища (repo.ErrNotFound, repo.ErrConflict) возвращаются
// как есть, обёрнутыми через %w.
var (
	// ErrInvalidEvent — неизвестный тип события или пустой ID сессии.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidLanguage — язык не поддерживается.
	ErrInvalidLanguage = errors.New("unsupported language")

	// ErrInvalidDemographics — в demographics есть не скалярное значение.
	ErrInvalidDemographics = errors.New("demographics must be scalar values")
)
