package domain

import "context"

// NotificationEvent — сырое событие нотификации, переданное агентом устройства.
type NotificationEvent struct {
	ID                string    `json:"event_id,omitempty"`
	Key               string    `json:"key"`
	PackageName       string    `json:"package_name"`
	Title             string    `json:"title,omitempty"`
	Text              string    `json:"text,omitempty"`
	ConversationTitle string    `json:"conversation_title,omitempty"`
	Messages          []Message `json:"messages,omitempty"`
	Ongoing           bool      `json:"ongoing,omitempty"`
	Chronometer       bool      `json:"chronometer,omitempty"`
	HasProgress       bool      `json:"has_progress,omitempty"`
	PostedAt          int64     `json:"posted_at"`
}

// EventAckFunc подтверждает обработку события или возвращает его в очередь.
type EventAckFunc func(success bool) error

// EventQueue описывает очередь событий нотификаций между шлюзом и воркером.
type EventQueue interface {
	Enqueue(ctx context.Context, event NotificationEvent) error
	Receive(ctx context.Context) (NotificationEvent, EventAckFunc, error)
}
