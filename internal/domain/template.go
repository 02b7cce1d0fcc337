package domain

import "maps"

// StepType — тип шага диалога.
type StepType string

const (
	// StepTypeText — бот отправляет реплику и сразу идёт дальше.
	StepTypeText StepType = "text"

	// StepTypeAsk — вопрос со свободным ответом.
	StepTypeAsk StepType = "ask"

	// StepTypeAskChoice — вопрос с вариантами ответа (Options).
	StepTypeAskChoice StepType = "ask_choice"

	// StepTypeAskOptional — вопрос, на который можно не отвечать.
	StepTypeAskOptional StepType = "ask_optional"

	// StepTypeMenu — меню с вариантами (Options), обычно с Condition.
	StepTypeMenu StepType = "menu"

	// StepTypeHandoff — передача диалога человеку (status → handoff_ready).
	StepTypeHandoff StepType = "handoff"

	// StepTypeEnd — завершение диалога (status → completed).
	StepTypeEnd StepType = "end"
)

// IsValid возвращает true для известных типов шагов.
func (t StepType) IsValid() bool {
	switch t {
	case StepTypeText, StepTypeAsk, StepTypeAskChoice, StepTypeAskOptional,
		StepTypeMenu, StepTypeHandoff, StepTypeEnd:
		return true
	default:
		return false
	}
}

// HasOptions возвращает true для типов, которые показывают варианты ответа.
func (t StepType) HasOptions() bool {
	return t == StepTypeAskChoice || t == StepTypeMenu
}

// AwaitsInput возвращает true, если шаг ждёт ответа пользователя.
// Остальные шаги продвигаются автоматическими событиями бота.
func (t StepType) AwaitsInput() bool {
	switch t {
	case StepTypeAsk, StepTypeAskChoice, StepTypeAskOptional, StepTypeMenu:
		return true
	default:
		return false
	}
}

// Option — вариант ответа для ask_choice и menu.
type Option struct {
	// Value — значение, которое приходит как ввод пользователя.
	Value string `json:"value"`

	// Label — подпись кнопки.
	Label Text `json:"label"`
}

// Condition — условный переход по точному совпадению ввода.
type Condition struct {
	// Variable — имя переменной (информационное поле, сравнивается сам ввод).
	Variable string `json:"variable,omitempty"`

	// Value — значение, с которым сравнивается ввод (без нормализации).
	Value string `json:"value"`

	// Next — ID flow, в начало которого выполняется переход.
	Next string `json:"next"`
}

// Step — атомарная единица диалога.
type Step struct {
	// ID — уникальный идентификатор шага в рамках flow.
	ID string `json:"id"`

	// Type — тип шага.
	Type StepType `json:"type"`

	// Text — текст реплики бота.
	Text Text `json:"text,omitzero"`

	// Options — варианты ответа (для ask_choice и menu).
	Options []Option `json:"options,omitempty"`

	// Next — ID flow для безусловного перехода.
	// Если такого flow нет в собранном шаблоне, шаг продвигается линейно.
	Next string `json:"next,omitempty"`

	// Variable — имя поля lead, в которое сохраняется ввод.
	Variable string `json:"variable,omitempty"`

	// Condition — условные переходы, проверяются по порядку.
	Condition []Condition `json:"condition,omitempty"`

	// Route — логический ключ маршрутизации.
	// При сборке шаблона Next подставляется из таблицы маршрутов (см. engine.Compose).
	Route string `json:"route,omitempty"`
}

// Clone возвращает глубокую копию шага.
func (s Step) Clone() Step {
	c := s
	c.Text = s.Text.Clone()
	if s.Options != nil {
		c.Options = make([]Option, len(s.Options))
		for i, opt := range s.Options {
			c.Options[i] = Option{Value: opt.Value, Label: opt.Label.Clone()}
		}
	}
	if s.Condition != nil {
		c.Condition = make([]Condition, len(s.Condition))
		copy(c.Condition, s.Condition)
	}
	return c
}

// Flow — именованная упорядоченная последовательность шагов.
type Flow struct {
	// ID — уникальный идентификатор flow в собранном шаблоне.
	ID string `json:"id"`

	// Steps — шаги в порядке выполнения.
	Steps []Step `json:"steps"`
}

// Clone возвращает глубокую копию flow.
func (f Flow) Clone() Flow {
	c := Flow{ID: f.ID}
	if f.Steps != nil {
		c.Steps = make([]Step, len(f.Steps))
		for i, step := range f.Steps {
			c.Steps[i] = step.Clone()
		}
	}
	return c
}

// Handoff — настройки передачи диалога человеку.
type Handoff struct {
	// SummaryTemplate — шаблон резюме с плейсхолдерами {variable}.
	// Nil — ключ не задан; пустой текст во фрагменте очищает ранее заданный.
	SummaryTemplate *Text `json:"summary_template,omitempty"`
}

// Template — фрагмент шаблона бота или собранный шаблон (botInstance).
//
// Фрагменты накладываются в порядке base → industry → goal,
// поздние фрагменты выигрывают по каждому совпадающему ключу.
type Template struct {
	// Flows — flows фрагмента.
	Flows []Flow `json:"flows"`

	// GlobalIntents — ключевое слово → ID flow (объявлены, runner их не применяет).
	GlobalIntents map[string]string `json:"global_intents,omitempty"`

	// Variables — переменные по умолчанию для интерполяции.
	Variables map[string]any `json:"variables,omitempty"`

	// Handoff — настройки handoff. Nil во фрагменте означает "не задано".
	Handoff *Handoff `json:"handoff,omitempty"`
}

// Flow возвращает flow по ID или nil.
func (t *Template) Flow(id string) *Flow {
	for i := range t.Flows {
		if t.Flows[i].ID == id {
			return &t.Flows[i]
		}
	}
	return nil
}

// Clone возвращает глубокую копию шаблона.
// Каждая сессия владеет собственной копией botInstance.
func (t Template) Clone() Template {
	c := Template{
		GlobalIntents: maps.Clone(t.GlobalIntents),
		Variables:     CloneValues(t.Variables),
	}
	if t.Flows != nil {
		c.Flows = make([]Flow, len(t.Flows))
		for i, f := range t.Flows {
			c.Flows[i] = f.Clone()
		}
	}
	if t.Handoff != nil {
		c.Handoff = &Handoff{}
		if t.Handoff.SummaryTemplate != nil {
			summary := t.Handoff.SummaryTemplate.Clone()
			c.Handoff.SummaryTemplate = &summary
		}
	}
	return c
}

// CloneValues копирует map произвольных значений, рекурсивно копируя
// вложенные map и слайсы.
func CloneValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	c := make(map[string]any, len(values))
	for k, v := range values {
		c[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneValues(val)
	case []any:
		c := make([]any, len(val))
		for i, item := range val {
			c[i] = cloneValue(item)
		}
		return c
	default:
		return v
	}
}
