package domain

import "time"

// Message — одно сообщение из нотификации-переписки. Порядок вставки
// совпадает с порядком реплик в разговоре.
type Message struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Notification описывает перехваченную и заблокированную нотификацию.
type Notification struct {
	ID                int64
	PackageName       string
	AppName           string
	Title             string
	Text              string
	ParsedText        string
	Messages          []Message
	ConversationTitle string
	Timestamp         int64
	CreatedAt         time.Time
}

// ListedApp — приложение из статического списка. Семантика списка —
// allow-list: нотификации перечисленных приложений никогда не подавляются.
type ListedApp struct {
	PackageName string
	AddedAt     time.Time
}

// Summary — сохранённый дайджест заблокированных нотификаций за окно сессии.
type Summary struct {
	ID             int64
	Text           string
	StartTimestamp int64
	EndTimestamp   int64
	CreatedAt      time.Time
}

// Settings — персистентные настройки пользователя.
type Settings struct {
	FilterEnabled      bool
	SmartFilterEnabled bool
	FilterInstruction  string
	SessionStart       int64
	SessionEnd         int64
	IntroDone          bool
	RetentionDays      int
	CapturedCount      int
}

// SettingKey — имя настройки в хранилище.
type SettingKey string

const (
	SettingFilterEnabled      SettingKey = "filter_enabled"
	SettingSmartFilterEnabled SettingKey = "smart_filter_enabled"
	SettingFilterInstruction  SettingKey = "filter_instruction"
	SettingSessionStart       SettingKey = "session_start"
	SettingSessionEnd         SettingKey = "session_end"
	SettingIntroDone          SettingKey = "intro_done"
	SettingRetentionDays      SettingKey = "retention_days"
	SettingCapturedCount      SettingKey = "captured_count"
)

// Decision — вердикт классификации нотификации.
type Decision int

const (
	// DecisionBlock — нотификация подавляется и сохраняется.
	DecisionBlock Decision = iota
	// DecisionAllow — нотификация публикуется пользователю заново.
	DecisionAllow
)

func (d Decision) String() string {
	if d == DecisionAllow {
		return "allow"
	}
	return "block"
}

// AppEntry — запись справочника приложений агента устройства.
type AppEntry struct {
	PackageName string `json:"package_name"`
	AppName     string `json:"app_name"`
}
