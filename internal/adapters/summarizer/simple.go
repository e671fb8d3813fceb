package summarizer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"noti-sentry/internal/domain"
)

// SimpleSummarizer — резервный суммаризатор без LLM: группирует нотификации
// по приложениям и выводит нумерованный список со счётчиками.
type SimpleSummarizer struct{}

// NewSimple создаёт суммаризатор.
func NewSimple() *SimpleSummarizer {
	return &SimpleSummarizer{}
}

var _ domain.Summarizer = (*SimpleSummarizer)(nil)

// Summarize строит дайджест вида «1. <App>: N notifications» с первой строкой
// последней нотификации каждой группы в качестве подсказки.
func (s *SimpleSummarizer) Summarize(_ context.Context, notifications []domain.Notification) (string, error) {
	if len(notifications) == 0 {
		return "", fmt.Errorf("суммаризация: нет нотификаций для дайджеста")
	}

	type group struct {
		name  string
		count int
		last  string
	}
	byApp := make(map[string]*group)
	order := make([]string, 0)
	for _, n := range notifications {
		name := n.AppName
		if name == "" {
			name = n.PackageName
		}
		g, ok := byApp[name]
		if !ok {
			g = &group{name: name}
			byApp[name] = g
			order = append(order, name)
		}
		g.count++
		if line := firstLine(n.ParsedText); line != "" {
			g.last = line
		}
	}
	sort.Strings(order)

	var b strings.Builder
	for i, name := range order {
		g := byApp[name]
		fmt.Fprintf(&b, "%d. %s: %d notification(s)", i+1, g.name, g.count)
		if g.last != "" {
			fmt.Fprintf(&b, ", latest: %s", g.last)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String()), nil
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
