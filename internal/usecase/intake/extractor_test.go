package intake

import (
	"context"
	"errors"
	"testing"

	"noti-sentry/internal/domain"
)

func TestIsLiveEvent(t *testing.T) {
	cases := []struct {
		name  string
		event domain.NotificationEvent
		want  bool
	}{
		{"обычная", domain.NotificationEvent{}, false},
		{"ongoing", domain.NotificationEvent{Ongoing: true}, true},
		{"таймер", domain.NotificationEvent{Chronometer: true}, true},
		{"прогресс", domain.NotificationEvent{HasProgress: true}, true},
	}
	for _, tc := range cases {
		if got := IsLiveEvent(tc.event); got != tc.want {
			t.Fatalf("%s: ожидали %v, получили %v", tc.name, tc.want, got)
		}
	}
}

func TestExtractNotification(t *testing.T) {
	event := domain.NotificationEvent{
		PackageName:       "com.example.chat",
		Title:             "Group",
		Text:              "fallback",
		ConversationTitle: "Friends",
		Messages:          []domain.Message{{Sender: "a", Text: "hi", Timestamp: 5}},
		PostedAt:          1700000000000,
	}
	n := ExtractNotification(event, "Chat")
	if n.AppName != "Chat" {
		t.Fatalf("ожидали имя приложения из справочника, получили %q", n.AppName)
	}
	if n.Timestamp != event.PostedAt {
		t.Fatalf("таймстемп должен совпадать с оригиналом")
	}
	if len(n.Messages) != 1 || n.Messages[0].Sender != "a" {
		t.Fatalf("сообщения должны переноситься как есть: %+v", n.Messages)
	}
	if n.ID != 0 {
		t.Fatalf("идентификатор присваивает хранилище, получили %d", n.ID)
	}
}

type stubDirectory struct {
	name string
	err  error
}

func (s *stubDirectory) ResolveAppName(context.Context, string) (string, error) {
	return s.name, s.err
}

func TestResolveAppNameFallsBackToPackage(t *testing.T) {
	if got := resolveAppName(context.Background(), nil, "com.example"); got != "com.example" {
		t.Fatalf("без справочника ожидали идентификатор пакета, получили %q", got)
	}
	dir := &stubDirectory{err: errors.New("down")}
	if got := resolveAppName(context.Background(), dir, "com.example"); got != "com.example" {
		t.Fatalf("при ошибке справочника ожидали идентификатор пакета, получили %q", got)
	}
	dir = &stubDirectory{name: "Example"}
	if got := resolveAppName(context.Background(), dir, "com.example"); got != "Example" {
		t.Fatalf("ожидали имя из справочника, получили %q", got)
	}
}
