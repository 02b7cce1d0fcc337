package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Botflow/internal/domain"
)

// Допустимые типы шагов.
var validStepTypes = []domain.StepType{
	domain.StepTypeText,
	domain.StepTypeAsk,
	domain.StepTypeAskChoice,
	domain.StepTypeAskOptional,
	domain.StepTypeMenu,
	domain.StepTypeHandoff,
	domain.StepTypeEnd,
}

// ParseTemplate разбирает фрагмент шаблона из JSON или YAML.
//
// YAML сначала декодируется в дерево значений и проходит через JSON,
// чтобы у обоих форматов были одни правила (в том числе для Text).
func ParseTemplate(data []byte) (domain.Template, error) {
	var t domain.Template

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return t, fmt.Errorf("%w: empty document", ErrTemplateParse)
	}

	if trimmed[0] != '{' {
		var tree any
		if err := yaml.Unmarshal(trimmed, &tree); err != nil {
			return t, fmt.Errorf("%w: yaml: %v", ErrTemplateParse, err)
		}
		converted, err := json.Marshal(tree)
		if err != nil {
			return t, fmt.Errorf("%w: yaml to json: %v", ErrTemplateParse, err)
		}
		trimmed = converted
	}

	if err := json.Unmarshal(trimmed, &t); err != nil {
		return t, fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	return t, nil
}

// Validate проверяет собранный шаблон и возвращает все найденные проблемы.
//
// Проверяет:
// - Наличие flows и flow main
// - Уникальность ID flows и шагов (в рамках flow)
// - Корректность типов шагов и наличие вариантов у шагов с выбором
// - Ссылки next / condition / global_intents на существующие flows
// - Привязку маршрутов (route)
// - Достижимость flows из main (делегируется Graph)
//
// Валидация рекомендательная: runner корректно обрабатывает любой шаблон,
// сводя структурные ошибки к completed.
func Validate(t *domain.Template) []*ValidationError {
	if t == nil || len(t.Flows) == 0 {
		return []*ValidationError{
			NewValidationError("", "", "flows", "template has no flows", ErrEmptyFlows),
		}
	}

	var issues []*ValidationError

	flowIDs := make(map[string]bool, len(t.Flows))
	for i := range t.Flows {
		flow := &t.Flows[i]

		if flow.ID == "" {
			issues = append(issues, NewValidationError("", "", "id",
				fmt.Sprintf("flow %d has empty ID", i), ErrEmptyFlowID))
			continue
		}
		if flowIDs[flow.ID] {
			issues = append(issues, NewValidationError(flow.ID, "", "id",
				fmt.Sprintf("duplicate flow ID: %s", flow.ID), ErrDuplicateFlowID))
			continue
		}
		flowIDs[flow.ID] = true
	}

	if !flowIDs[domain.DefaultFlowID] {
		issues = append(issues, NewValidationError("", "", "flows",
			"template has no main flow", ErrMissingMainFlow))
	}

	for i := range t.Flows {
		issues = append(issues, validateFlow(&t.Flows[i], flowIDs)...)
	}

	for keyword, target := range t.GlobalIntents {
		if !flowIDs[target] {
			issues = append(issues, NewValidationError("", "", "global_intents",
				fmt.Sprintf("intent %q targets unknown flow: %s", keyword, target), ErrUnknownFlow))
		}
	}

	if flowIDs[domain.DefaultFlowID] {
		graph := BuildGraph(t)
		for _, id := range graph.Unreachable(domain.DefaultFlowID) {
			issues = append(issues, NewValidationError(id, "", "id",
				"flow is unreachable from main", ErrUnreachableFlow))
		}
	}

	return issues
}

// validateFlow проверяет шаги одного flow.
func validateFlow(flow *domain.Flow, flowIDs map[string]bool) []*ValidationError {
	var issues []*ValidationError

	if len(flow.Steps) == 0 {
		return append(issues, NewValidationError(flow.ID, "", "steps",
			"flow has no steps", ErrEmptySteps))
	}

	stepIDs := make(map[string]bool, len(flow.Steps))
	for i := range flow.Steps {
		step := &flow.Steps[i]

		// Проверка ID
		if step.ID == "" {
			issues = append(issues, NewValidationError(flow.ID, "", "id",
				fmt.Sprintf("step %d has empty ID", i), ErrEmptyStepID))
		} else if stepIDs[step.ID] {
			issues = append(issues, NewValidationError(flow.ID, step.ID, "id",
				fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID))
		} else {
			stepIDs[step.ID] = true
		}

		// Проверка типа
		if err := validateStepType(flow.ID, step); err != nil {
			issues = append(issues, err)
		}

		if step.Type.HasOptions() && len(step.Options) == 0 {
			issues = append(issues, NewValidationError(flow.ID, step.ID, "options",
				"choice step has no options", ErrMissingOptions))
		}

		// next без существующего flow — линейный переход, но почти всегда опечатка
		if step.Next != "" && !flowIDs[step.Next] {
			issues = append(issues, NewValidationError(flow.ID, step.ID, "next",
				fmt.Sprintf("next refers to unknown flow: %s", step.Next), ErrUnknownFlow))
		}

		if step.Route != "" && step.Next == "" {
			issues = append(issues, NewValidationError(flow.ID, step.ID, "route",
				fmt.Sprintf("route %q is not bound to a flow", step.Route), ErrUnboundRoute))
		}

		for _, cond := range step.Condition {
			if !flowIDs[cond.Next] {
				issues = append(issues, NewValidationError(flow.ID, step.ID, "condition",
					fmt.Sprintf("condition %q refers to unknown flow: %s", cond.Value, cond.Next), ErrUnknownFlow))
			}
		}
	}

	return issues
}

// validateStepType проверяет, что тип шага известен.
func validateStepType(flowID string, step *domain.Step) *ValidationError {
	if step.Type == "" {
		return NewValidationError(flowID, step.ID, "type",
			"step has empty type", ErrUnknownStepType)
	}

	if !step.Type.IsValid() {
		return NewValidationError(flowID, step.ID, "type",
			fmt.Sprintf("unknown step type: %s (valid: %s)", step.Type, strings.Join(GetValidStepTypes(), ", ")),
			ErrUnknownStepType)
	}

	return nil
}

// GetValidStepTypes возвращает список допустимых типов шагов.
func GetValidStepTypes() []string {
	types := make([]string, len(validStepTypes))
	for i, t := range validStepTypes {
		types[i] = string(t)
	}
	return types
}
