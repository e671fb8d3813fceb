package appdir

import (
	"context"
	"errors"
	"fmt"
	"time"

	"noti-sentry/internal/domain"
)

const cacheTTL = 24 * time.Hour

// Resolver возвращает отображаемые имена приложений из справочника,
// кэшируя ответы. cache может быть nil — тогда каждый запрос идёт в БД.
type Resolver struct {
	repo  domain.AppDirectoryRepo
	cache domain.Cache
}

// NewResolver создаёт резолвер имён приложений.
func NewResolver(repo domain.AppDirectoryRepo, cache domain.Cache) *Resolver {
	return &Resolver{repo: repo, cache: cache}
}

var _ domain.AppDirectory = (*Resolver)(nil)

// ResolveAppName ищет имя в кэше, затем в справочнике. Отсутствие записи —
// domain.ErrAppNotFound; вызывающая сторона подставляет идентификатор пакета.
func (r *Resolver) ResolveAppName(ctx context.Context, packageName string) (string, error) {
	key := cacheKey(packageName)
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, key); err == nil && len(cached) > 0 {
			return string(cached), nil
		}
	}

	name, err := r.repo.LookupAppName(packageName)
	if err != nil {
		if errors.Is(err, domain.ErrAppNotFound) {
			return "", err
		}
		return "", fmt.Errorf("поиск имени приложения: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, key, []byte(name), cacheTTL)
	}
	return name, nil
}

// Upsert обновляет справочник записями от агента и сбрасывает кэш по ним.
func (r *Resolver) Upsert(ctx context.Context, entries []domain.AppEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := r.repo.UpsertAppEntries(entries); err != nil {
		return fmt.Errorf("обновление справочника приложений: %w", err)
	}
	if r.cache != nil {
		for _, entry := range entries {
			_ = r.cache.Set(ctx, cacheKey(entry.PackageName), []byte(entry.AppName), cacheTTL)
		}
	}
	return nil
}

func cacheKey(packageName string) string {
	return "appdir:" + packageName
}
