// Package masking удаляет персональные данные (PII) из текста перед сохранением.
//
// Маскируются три вида подстрок, всегда в одном порядке:
//   - e-mail          → [EMAIL]
//   - номер телефона  → [PHONE]
//   - 8+ цифр подряд  → [NUMBER]
//
// Функции чистые и никогда не возвращают ошибку. Маскирование идемпотентно:
// токены не содержат символов, которые распознаются повторным проходом.
package masking

import "regexp"

// Токены замены.
const (
	TokenEmail  = "[EMAIL]"
	TokenPhone  = "[PHONE]"
	TokenNumber = "[NUMBER]"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)

	// Необязательный +код страны, затем группы 3/3/4 через пробел, точку, дефис или скобки.
	phonePattern = regexp.MustCompile(`\b(?:\+?(\d{1,3}))?[-. (]*(\d{3})[-. )]*(\d{3})[-. ]*(\d{4})\b`)

	longNumberPattern = regexp.MustCompile(`\b\d{8,}\b`)
)

// Mask заменяет PII в тексте на токены.
// Пустая строка возвращается как есть.
func Mask(text string) string {
	if text == "" {
		return text
	}
	masked := emailPattern.ReplaceAllLiteralString(text, TokenEmail)
	masked = phonePattern.ReplaceAllLiteralString(masked, TokenPhone)
	masked = longNumberPattern.ReplaceAllLiteralString(masked, TokenNumber)
	return masked
}

// MaskDeep возвращает копию map, в которой замаскированы все строковые значения.
//
// Вложенные map и слайсы обходятся рекурсивно, остальные значения
// (числа, bool, nil) копируются без изменений. Исходная map не меняется.
func MaskDeep(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = maskValue(v)
	}
	return out
}

func maskValue(v any) any {
	switch val := v.(type) {
	case string:
		return Mask(val)
	case map[string]any:
		return MaskDeep(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = maskValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = Mask(item)
		}
		return out
	default:
		return v
	}
}
