package engine

import "github.com/shaiso/Botflow/internal/domain"

// FieldUpdate — значение, захваченное шагом с Variable.
type FieldUpdate struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Transition — результат одного шага state machine.
//
// Пустые поля означают "без изменений". Маскирование Field.Value —
// ответственность вызывающего кода, до сохранения.
type Transition struct {
	NextFlowID    string               `json:"next_flow_id,omitempty"`
	NextStepIndex *int                 `json:"next_step_index,omitempty"`
	Field         *FieldUpdate         `json:"field_to_update,omitempty"`
	Status        domain.SessionStatus `json:"status,omitempty"`
}

// Patch переводит Transition в изменения сессии.
func (t Transition) Patch() domain.SessionPatch {
	var p domain.SessionPatch
	if t.NextFlowID != "" {
		flowID := t.NextFlowID
		p.CurrentFlowID = &flowID
	}
	if t.NextStepIndex != nil {
		idx := *t.NextStepIndex
		p.CurrentStepIndex = &idx
	}
	p.Status = t.Status
	if t.Field != nil {
		p.LeadField = &domain.LeadField{Key: t.Field.Key, Value: t.Field.Value}
	}
	return p
}

// Advance вычисляет следующий шаг диалога.
//
// input — сырой ввод пользователя; пустая строка означает "ввода нет".
// Порядок проверок:
//  1. курсор не задан → начало flow main;
//  2. flow или шаг не найден → completed;
//  3. захват ввода в Variable (до любого ветвления);
//  4. первое точное совпадение condition → начало целевого flow;
//  5. next указывает на существующий flow → начало этого flow;
//  6. handoff → handoff_ready, курсор за шаг;
//  7. end → completed, курсор за шаг;
//  8. линейный переход; выход за конец flow → completed.
//
// Advance не изменяет session и никогда не паникует на битом шаблоне.
func Advance(session domain.Session, input string) Transition {
	if session.CurrentFlowID == "" {
		return Transition{NextFlowID: domain.DefaultFlowID, NextStepIndex: intPtr(0)}
	}

	flow := session.BotInstance.Flow(session.CurrentFlowID)
	idx := session.CurrentStepIndex
	if flow == nil || idx < 0 || idx >= len(flow.Steps) {
		return Transition{Status: domain.SessionStatusCompleted}
	}
	step := flow.Steps[idx]

	var field *FieldUpdate
	if step.Variable != "" && input != "" {
		field = &FieldUpdate{Key: step.Variable, Value: input}
	}

	if input != "" {
		for _, cond := range step.Condition {
			if cond.Value == input {
				return Transition{NextFlowID: cond.Next, NextStepIndex: intPtr(0), Field: field}
			}
		}
	}

	if step.Next != "" && session.BotInstance.Flow(step.Next) != nil {
		return Transition{NextFlowID: step.Next, NextStepIndex: intPtr(0), Field: field}
	}

	switch step.Type {
	case domain.StepTypeHandoff:
		return Transition{
			NextFlowID:    flow.ID,
			NextStepIndex: intPtr(idx + 1),
			Field:         field,
			Status:        domain.SessionStatusHandoffReady,
		}
	case domain.StepTypeEnd:
		return Transition{
			NextFlowID:    flow.ID,
			NextStepIndex: intPtr(idx + 1),
			Field:         field,
			Status:        domain.SessionStatusCompleted,
		}
	}

	next := idx + 1
	if next >= len(flow.Steps) {
		return Transition{Status: domain.SessionStatusCompleted, Field: field}
	}

	status := session.Status
	if status == "" {
		status = domain.SessionStatusActive
	}
	return Transition{NextFlowID: flow.ID, NextStepIndex: intPtr(next), Field: field, Status: status}
}

// CurrentStep возвращает шаг под курсором сессии.
// Второе значение — false, если курсор не адресует существующий шаг.
func CurrentStep(session domain.Session) (domain.Step, bool) {
	flowID := session.CurrentFlowID
	if flowID == "" {
		flowID = domain.DefaultFlowID
	}
	flow := session.BotInstance.Flow(flowID)
	if flow == nil || session.CurrentStepIndex < 0 || session.CurrentStepIndex >= len(flow.Steps) {
		return domain.Step{}, false
	}
	return flow.Steps[session.CurrentStepIndex], true
}

func intPtr(v int) *int {
	return &v
}
