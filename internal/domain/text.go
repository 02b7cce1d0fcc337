package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Text — отображаемый текст шага, опции или шаблона handoff.
//
// В JSON допускаются две формы:
//
//	"text": "Hola"
//	"text": {"es": "Hola", "en": "Hello"}
type Text struct {
	// Plain — текст без локализации.
	Plain string

	// Localized — переводы по коду языка ("es", "en").
	// Если задан, имеет приоритет над Plain.
	Localized map[string]string
}

// PlainText создаёт нелокализованный текст.
func PlainText(s string) Text {
	return Text{Plain: s}
}

// LocalizedText создаёт текст с переводами.
func LocalizedText(translations map[string]string) Text {
	return Text{Localized: translations}
}

// IsZero возвращает true, если текст не задан ни в одной форме.
func (t Text) IsZero() bool {
	return t.Plain == "" && len(t.Localized) == 0
}

// IsLocalized возвращает true, если текст задан словарём по языкам.
func (t Text) IsLocalized() bool {
	return t.Localized != nil
}

// Clone возвращает копию текста, не разделяющую map с оригиналом.
func (t Text) Clone() Text {
	return Text{Plain: t.Plain, Localized: maps.Clone(t.Localized)}
}

// MarshalJSON сериализует текст в строку или объект.
func (t Text) MarshalJSON() ([]byte, error) {
	if t.Localized != nil {
		return json.Marshal(t.Localized)
	}
	return json.Marshal(t.Plain)
}

// UnmarshalJSON принимает строку, объект {lang: text} или null.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*t = Text{}

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		return json.Unmarshal(data, &t.Plain)
	case '{':
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("localized text: %w", err)
		}
		t.Localized = m
		return nil
	default:
		return fmt.Errorf("text must be a string or an object, got %s", data)
	}
}
