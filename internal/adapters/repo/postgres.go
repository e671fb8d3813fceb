package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"noti-sentry/internal/domain"
	"noti-sentry/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var (
	_ domain.NotificationRepo = (*Postgres)(nil)
	_ domain.ListedAppRepo    = (*Postgres)(nil)
	_ domain.SummaryRepo      = (*Postgres)(nil)
	_ domain.SettingsRepo     = (*Postgres)(nil)
	_ domain.AppDirectoryRepo = (*Postgres)(nil)
)

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// SaveNotification реализует domain.NotificationRepo.
func (p *Postgres) SaveNotification(n domain.Notification) (domain.Notification, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	messages, err := json.Marshal(n.Messages)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("сериализация сообщений: %w", err)
	}

	start := time.Now()
	err = p.pool.QueryRow(ctx, `
INSERT INTO blocked_notifications (package_name, app_name, title, body, parsed_text, messages, conversation_title, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at
`, n.PackageName, n.AppName, n.Title, n.Text, n.ParsedText, messages, n.ConversationTitle, n.Timestamp).
		Scan(&n.ID, &n.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "notifications_insert", "blocked_notifications", start, err)
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// ListNotifications возвращает все заблокированные нотификации, новые первыми.
func (p *Postgres) ListNotifications() ([]domain.Notification, error) {
	return p.queryNotifications(`
SELECT id, package_name, app_name, title, body, parsed_text, messages, conversation_title, posted_at, created_at
FROM blocked_notifications
ORDER BY posted_at DESC
`, "notifications_list")
}

// ListNotificationsBetween возвращает нотификации с posted_at в [start, end]
// в порядке поступления.
func (p *Postgres) ListNotificationsBetween(startTS, endTS int64) ([]domain.Notification, error) {
	return p.queryNotifications(`
SELECT id, package_name, app_name, title, body, parsed_text, messages, conversation_title, posted_at, created_at
FROM blocked_notifications
WHERE posted_at >= $1 AND posted_at <= $2
ORDER BY posted_at ASC
`, "notifications_window", startTS, endTS)
}

func (p *Postgres) queryNotifications(query, operation string, args ...any) ([]domain.Notification, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", operation, "blocked_notifications", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var messages []byte
		if err := rows.Scan(&n.ID, &n.PackageName, &n.AppName, &n.Title, &n.Text, &n.ParsedText, &messages, &n.ConversationTitle, &n.Timestamp, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(messages) > 0 {
			if err := json.Unmarshal(messages, &n.Messages); err != nil {
				return nil, fmt.Errorf("разбор сообщений нотификации %d: %w", n.ID, err)
			}
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// DeleteNotificationsBefore удаляет нотификации с posted_at строго меньше cutoff.
func (p *Postgres) DeleteNotificationsBefore(cutoff int64) (int64, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM blocked_notifications WHERE posted_at < $1`, cutoff)
	metrics.ObserveNetworkRequest("postgres", "notifications_delete_old", "blocked_notifications", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IsListed реализует domain.ListedAppRepo.
func (p *Postgres) IsListed(packageName string) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listed_apps WHERE package_name = $1)`, packageName).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "listed_apps_check", "listed_apps", start, err)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// AddToList добавляет приложение в список. Повторное добавление — no-op.
func (p *Postgres) AddToList(packageName string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO listed_apps (package_name, added_at)
VALUES ($1, NOW())
ON CONFLICT (package_name) DO NOTHING
`, packageName)
	metrics.ObserveNetworkRequest("postgres", "listed_apps_insert", "listed_apps", start, err)
	return err
}

// RemoveFromList убирает приложение из списка. Отсутствующее — no-op.
func (p *Postgres) RemoveFromList(packageName string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM listed_apps WHERE package_name = $1`, packageName)
	metrics.ObserveNetworkRequest("postgres", "listed_apps_delete", "listed_apps", start, err)
	return err
}

// ListApps возвращает список приложений в порядке добавления.
func (p *Postgres) ListApps() ([]domain.ListedApp, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT package_name, added_at FROM listed_apps ORDER BY added_at ASC`)
	metrics.ObserveNetworkRequest("postgres", "listed_apps_list", "listed_apps", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ListedApp
	for rows.Next() {
		var app domain.ListedApp
		if err := rows.Scan(&app.PackageName, &app.AddedAt); err != nil {
			return nil, err
		}
		result = append(result, app)
	}
	return result, rows.Err()
}

// SaveSummary реализует domain.SummaryRepo.
func (p *Postgres) SaveSummary(s domain.Summary) (domain.Summary, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO summaries (summary_text, start_ts, end_ts)
VALUES ($1, $2, $3)
RETURNING id, created_at
`, s.Text, s.StartTimestamp, s.EndTimestamp).Scan(&s.ID, &s.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "summaries_insert", "summaries", start, err)
	if err != nil {
		return domain.Summary{}, err
	}
	return s, nil
}

// ListSummaries возвращает дайджесты, новые первыми.
func (p *Postgres) ListSummaries() ([]domain.Summary, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, summary_text, start_ts, end_ts, created_at
FROM summaries
ORDER BY start_ts DESC
`)
	metrics.ObserveNetworkRequest("postgres", "summaries_list", "summaries", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Summary
	for rows.Next() {
		var s domain.Summary
		if err := rows.Scan(&s.ID, &s.Text, &s.StartTimestamp, &s.EndTimestamp, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// DeleteSummaryCascade атомарно удаляет дайджест и нотификации его окна.
// Либо исчезают обе части, либо ни одна.
func (p *Postgres) DeleteSummaryCascade(id int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var startTS, endTS int64
	start := time.Now()
	err = tx.QueryRow(ctx, `SELECT start_ts, end_ts FROM summaries WHERE id = $1`, id).Scan(&startTS, &endTS)
	metrics.ObserveNetworkRequest("postgres", "summaries_get", "summaries", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrSummaryNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM blocked_notifications WHERE posted_at >= $1 AND posted_at <= $2`, startTS, endTS); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM summaries WHERE id = $1`, id); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "summaries_delete_cascade", "summaries", start, err)
	return err
}

// DeleteSummariesBefore удаляет дайджесты с end_ts строго меньше cutoff.
func (p *Postgres) DeleteSummariesBefore(cutoff int64) (int64, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM summaries WHERE end_ts < $1`, cutoff)
	metrics.ObserveNetworkRequest("postgres", "summaries_delete_old", "summaries", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LoadSettings реализует domain.SettingsRepo. Отсутствующие ключи получают
// значения по умолчанию.
func (p *Postgres) LoadSettings() (domain.Settings, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT key, value FROM settings`)
	metrics.ObserveNetworkRequest("postgres", "settings_load", "settings", start, err)
	if err != nil {
		return domain.Settings{}, err
	}
	defer rows.Close()

	var settings domain.Settings
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return domain.Settings{}, err
		}
		applySetting(&settings, domain.SettingKey(key), value)
	}
	return settings, rows.Err()
}

// SaveSetting сохраняет одно значение настройки.
func (p *Postgres) SaveSetting(key domain.SettingKey, value string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO settings (key, value)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
`, string(key), value)
	metrics.ObserveNetworkRequest("postgres", "settings_save", "settings", start, err)
	return err
}

// IncrementCaptured атомарно увеличивает счётчик перехваченных нотификаций
// и возвращает новое значение.
func (p *Postgres) IncrementCaptured() (int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var raw string
	err := p.pool.QueryRow(ctx, `
INSERT INTO settings (key, value)
VALUES ($1, '1')
ON CONFLICT (key) DO UPDATE SET value = (settings.value::bigint + 1)::text
RETURNING value
`, string(domain.SettingCapturedCount)).Scan(&raw)
	metrics.ObserveNetworkRequest("postgres", "settings_increment", "settings", start, err)
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("разбор счётчика перехваченных: %w", err)
	}
	return count, nil
}

// LookupAppName реализует domain.AppDirectoryRepo.
func (p *Postgres) LookupAppName(packageName string) (string, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var name string
	err := p.pool.QueryRow(ctx, `SELECT app_name FROM app_directory WHERE package_name = $1`, packageName).Scan(&name)
	metrics.ObserveNetworkRequest("postgres", "app_directory_get", "app_directory", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrAppNotFound
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// UpsertAppEntries обновляет справочник отображаемых имён одним батчем.
func (p *Postgres) UpsertAppEntries(entries []domain.AppEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := p.connCtx()
	defer cancel()

	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(`
INSERT INTO app_directory (package_name, app_name)
VALUES ($1, $2)
ON CONFLICT (package_name) DO UPDATE SET app_name = EXCLUDED.app_name
`, entry.PackageName, entry.AppName)
	}

	start := time.Now()
	err := p.pool.SendBatch(ctx, batch).Close()
	metrics.ObserveNetworkRequest("postgres", "app_directory_upsert", "app_directory", start, err)
	return err
}

func applySetting(settings *domain.Settings, key domain.SettingKey, value string) {
	switch key {
	case domain.SettingFilterEnabled:
		settings.FilterEnabled = value == "true"
	case domain.SettingSmartFilterEnabled:
		settings.SmartFilterEnabled = value == "true"
	case domain.SettingFilterInstruction:
		settings.FilterInstruction = value
	case domain.SettingSessionStart:
		if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
			settings.SessionStart = ts
		}
	case domain.SettingSessionEnd:
		if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
			settings.SessionEnd = ts
		}
	case domain.SettingIntroDone:
		settings.IntroDone = value == "true"
	case domain.SettingRetentionDays:
		if days, err := strconv.Atoi(value); err == nil {
			settings.RetentionDays = days
		}
	case domain.SettingCapturedCount:
		if count, err := strconv.Atoi(value); err == nil {
			settings.CapturedCount = count
		}
	}
}
