package classifier

import (
	"context"
	"strings"
	"unicode"

	"noti-sentry/internal/domain"
)

const minKeywordLen = 3

// KeywordClassifier — эвристический классификатор без LLM. Пропускает
// нотификацию, только если её текст содержит слово из инструкции
// пользователя; остальное блокируется, fail-closed сохраняется.
type KeywordClassifier struct{}

// NewKeyword создаёт классификатор.
func NewKeyword() *KeywordClassifier {
	return &KeywordClassifier{}
}

var _ domain.Classifier = (*KeywordClassifier)(nil)

// Classify ищет слова инструкции в тексте нотификации.
func (c *KeywordClassifier) Classify(_ context.Context, instruction, notificationText string) (domain.Decision, error) {
	keywords := splitKeywords(instruction)
	if len(keywords) == 0 {
		return domain.DecisionBlock, nil
	}
	haystack := strings.ToLower(notificationText)
	for _, keyword := range keywords {
		if strings.Contains(haystack, keyword) {
			return domain.DecisionAllow, nil
		}
	}
	return domain.DecisionBlock, nil
}

func splitKeywords(instruction string) []string {
	fields := strings.FieldsFunc(strings.ToLower(instruction), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	keywords := make([]string, 0, len(fields))
	for _, field := range fields {
		if len([]rune(field)) < minKeywordLen {
			continue
		}
		keywords = append(keywords, field)
	}
	return keywords
}
