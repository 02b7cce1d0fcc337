package engine

import "errors"

// Ошибки валидации собранного шаблона.
var (
	// ErrEmptyFlows — шаблон не содержит flows.
	ErrEmptyFlows = errors.New("template has no flows")

	// ErrMissingMainFlow — нет flow "main", с которого начинается диалог.
	ErrMissingMainFlow = errors.New("template has no main flow")

	// ErrEmptyFlowID — flow не имеет ID.
	ErrEmptyFlowID = errors.New("flow has empty ID")

	// ErrDuplicateFlowID — несколько flows с одинаковым ID.
	ErrDuplicateFlowID = errors.New("duplicate flow ID")

	// ErrEmptySteps — flow не содержит шагов.
	ErrEmptySteps = errors.New("flow has no steps")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID в одном flow.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownStepType — неизвестный тип шага.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrMissingOptions — шаг с выбором не содержит вариантов.
	ErrMissingOptions = errors.New("choice step has no options")

	// ErrUnknownFlow — next или condition ссылается на несуществующий flow.
	ErrUnknownFlow = errors.New("reference to unknown flow")

	// ErrUnboundRoute — ключ маршрута не привязан к flow.
	ErrUnboundRoute = errors.New("route key is not bound")

	// ErrUnreachableFlow — flow недостижим из main.
	ErrUnreachableFlow = errors.New("flow is unreachable from main")
)

// Ошибки парсинга фрагментов.
var (
	// ErrTemplateParse — фрагмент не удалось разобрать.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	FlowID  string // ID flow, где найдена проблема
	StepID  string // ID шага (пустой для проблем уровня flow)
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	switch {
	case e.FlowID != "" && e.StepID != "":
		return "flow " + e.FlowID + ", step " + e.StepID + ": " + e.Message
	case e.FlowID != "":
		return "flow " + e.FlowID + ": " + e.Message
	default:
		return e.Message
	}
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(flowID, stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		FlowID:  flowID,
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
