package engine

import (
	"maps"

	"github.com/shaiso/Botflow/internal/domain"
)

// Merge собирает шаблон из упорядоченного списка фрагментов.
//
// Правила наложения (поздний фрагмент выигрывает):
//   - variables и global_intents — поверхностное слияние по ключам;
//   - handoff — слияние по ключам: заданный summary_template (даже пустой) заменяет прежний;
//   - flows — регистрация по ID, поздний flow целиком заменяет ранний
//     (без слияния на уровне шагов).
//
// Порядок flows в результате — порядок первого появления ID.
// Merge не проверяет граф переходов и никогда не падает; результат —
// глубокая копия, фрагменты не изменяются.
func Merge(fragments ...domain.Template) domain.Template {
	result := domain.Template{
		Flows:         make([]domain.Flow, 0),
		GlobalIntents: make(map[string]string),
		Variables:     make(map[string]any),
		Handoff:       &domain.Handoff{},
	}

	position := make(map[string]int)

	for _, fragment := range fragments {
		maps.Copy(result.Variables, domain.CloneValues(fragment.Variables))
		maps.Copy(result.GlobalIntents, fragment.GlobalIntents)

		if fragment.Handoff != nil && fragment.Handoff.SummaryTemplate != nil {
			summary := fragment.Handoff.SummaryTemplate.Clone()
			result.Handoff.SummaryTemplate = &summary
		}

		for _, flow := range fragment.Flows {
			if i, ok := position[flow.ID]; ok {
				result.Flows[i] = flow.Clone()
				continue
			}
			position[flow.ID] = len(result.Flows)
			result.Flows = append(result.Flows, flow.Clone())
		}
	}

	return result
}

// ComposeOptions — параметры сборки поверх Merge.
type ComposeOptions struct {
	// Routes — логический ключ маршрута → ID flow.
	// Шаг с Route = key получает Next = Routes[key].
	Routes map[string]string

	// Variables — значения, накладываемые поверх переменных фрагментов
	// (демография и настройки, собранные при создании сессии).
	Variables map[string]any
}

// Compose собирает шаблон и привязывает маршруты.
//
// Маршрутизирующий шаг (например, goal_router) объявляет логический ключ
// в поле Route; целевой flow выбирается при сборке. Непривязанный ключ
// оставляет Next шага без изменений.
func Compose(fragments []domain.Template, opts ComposeOptions) domain.Template {
	result := Merge(fragments...)

	if len(opts.Routes) > 0 {
		for i := range result.Flows {
			steps := result.Flows[i].Steps
			for j := range steps {
				if steps[j].Route == "" {
					continue
				}
				if target, ok := opts.Routes[steps[j].Route]; ok {
					steps[j].Next = target
				}
			}
		}
	}

	maps.Copy(result.Variables, domain.CloneValues(opts.Variables))

	return result
}
