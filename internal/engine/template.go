package engine

import (
	"fmt"
	"maps"
	"regexp"

	"github.com/shaiso/Botflow/internal/domain"
)

// Значения для отсутствующих переменных.
const (
	// SummaryFallback — подставляется в резюме handoff.
	SummaryFallback = "N/A"

	// ChatFallback — подставляется в реплики бота.
	ChatFallback = ""
)

// placeholderPattern — плейсхолдер {identifier}. Вложенные и незакрытые
// скобки не совпадают и остаются как есть.
var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// Context — значения для интерполяции: переменные шаблона и lead.
type Context map[string]any

// NewContext строит контекст интерполяции сессии.
// Переменные botInstance перекрываются полями lead (lead выигрывает).
func NewContext(session domain.Session) Context {
	ctx := make(Context, len(session.BotInstance.Variables)+len(session.Lead))
	maps.Copy(ctx, session.BotInstance.Variables)
	maps.Copy(ctx, session.Lead)
	return ctx
}

// Localize возвращает текст на языке lang.
// Порядок: lang → en → "" (для локализованного текста), иначе Plain.
func Localize(text domain.Text, lang string) string {
	if !text.IsLocalized() {
		return text.Plain
	}
	if s := text.Localized[lang]; s != "" {
		return s
	}
	return text.Localized[domain.LanguageEN]
}

// Interpolate заменяет {key} значениями из ctx.
// nil и пустая строка считаются отсутствующим значением и заменяются на fallback.
func Interpolate(tmpl string, ctx Context, fallback string) string {
	if tmpl == "" {
		return tmpl
	}
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[1 : len(match)-1]
		v, ok := ctx[key]
		if !ok || v == nil {
			return fallback
		}
		s := fmt.Sprint(v)
		if s == "" {
			return fallback
		}
		return s
	})
}

// RenderText локализует текст и подставляет переменные.
func RenderText(text domain.Text, lang string, ctx Context, fallback string) string {
	return Interpolate(Localize(text, lang), ctx, fallback)
}
