package summarizer

import (
	"context"
	"strings"
	"testing"

	"noti-sentry/internal/domain"
)

func TestSimpleSummarizeGroupsByApp(t *testing.T) {
	s := NewSimple()
	notifications := []domain.Notification{
		{AppName: "Chat", ParsedText: "[Chat] Alice\nAlice: hi"},
		{AppName: "Chat", ParsedText: "[Chat] Bob\nBob: yo"},
		{AppName: "News", ParsedText: "[News] Breaking"},
	}
	text, err := s.Summarize(context.Background(), notifications)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	lines := strings.Split(text, "\n")
	if len(lines) != 2 {
		t.Fatalf("ожидали две группы, получили %d: %q", len(lines), text)
	}
	if !strings.Contains(lines[0], "Chat: 2 notification(s)") {
		t.Fatalf("первая группа должна быть Chat со счётчиком 2: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2. News") {
		t.Fatalf("группы нумеруются по алфавиту: %q", lines[1])
	}
}

func TestSimpleSummarizeFallsBackToPackageName(t *testing.T) {
	s := NewSimple()
	text, err := s.Summarize(context.Background(), []domain.Notification{
		{PackageName: "com.example", ParsedText: "[com.example] ping"},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(text, "com.example") {
		t.Fatalf("без имени приложения используется идентификатор пакета: %q", text)
	}
}

func TestSimpleSummarizeEmptyInputFails(t *testing.T) {
	s := NewSimple()
	if _, err := s.Summarize(context.Background(), nil); err == nil {
		t.Fatalf("ожидали ошибку на пустом входе")
	}
}
