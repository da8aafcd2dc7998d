// Package textutil чистит пользовательский текст перед записью на доску.
package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxLen - максимальная длина вопроса или ответа в символах.
const DefaultMaxLen = 2000

var strict = bluemonday.StrictPolicy()

// maxCleanPasses ограничивает вложенное экранирование вроде &amp;lt;.
const maxCleanPasses = 8

// Clean удаляет разметку и пробелы по краям. Сущности вроде &amp;
// раскрываются обратно, экранирование остаётся за тем, кто рисует текст.
// Очистка повторяется, пока раскрытые сущности дают новую разметку.
func Clean(s string) string {
	for i := 0; i < maxCleanPasses; i++ {
		next := html.UnescapeString(strict.Sanitize(s))
		if next == s {
			return strings.TrimSpace(s)
		}
		s = next
	}
	// Не сошлось: отдаём текст экранированным
	return strings.TrimSpace(strict.Sanitize(s))
}

// IsBlank истинно для пустой строки или строки только из пробелов.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// TooLong проверяет лимит длины в символах (не байтах). max <= 0 - без лимита.
func TooLong(s string, max int) bool {
	return max > 0 && utf8.RuneCountInString(s) > max
}
