// Package dedup — множество уже отправленных объявлений поверх хранилища отметок.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flatwatch/internal/listing"
	"flatwatch/internal/observability"
	"flatwatch/internal/storage"
)

// StoreError — отметку не удалось сохранить. Продолжать цикл нельзя:
// следующий проход отправит то же объявление повторно.
type StoreError struct {
	ID  int64
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("mark listing %d as known: %v", e.ID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

type Cache struct {
	repo   storage.Repository
	logger *observability.Logger
	now    func() time.Time

	// mu делает проверку, отправку и отметку одной операцией
	mu sync.Mutex

	knownMu sync.RWMutex
	known   []listing.Listing
}

func New(repo storage.Repository, logger *observability.Logger) *Cache {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Cache{repo: repo, logger: logger, now: time.Now}
}

// IsKnown не возвращает ошибок: сбой хранилища логируется и считается «неизвестно».
func (c *Cache) IsKnown(ctx context.Context, id int64) bool {
	ok, err := c.repo.Exists(ctx, id)
	if err != nil {
		c.logger.Warn("Dedup lookup failed, treating listing as new", "id", id, "error", err)
		return false
	}
	return ok
}

// MarkKnown сохраняет отметку вместе с записью. Ошибка — *StoreError.
func (c *Cache) MarkKnown(ctx context.Context, rec listing.Listing) error {
	if _, err := c.repo.Put(ctx, storage.NewMarker(rec, c.now())); err != nil {
		return &StoreError{ID: rec.ID, Err: err}
	}
	return nil
}

// Admit проверяет запись, вызывает send для новой и отмечает её.
// sent=true означает, что send отработал успешно. Ошибка send возвращается
// как есть и запись остаётся неизвестной; ошибка отметки — *StoreError.
func (c *Cache) Admit(ctx context.Context, rec listing.Listing, send func(context.Context) error) (sent bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsKnown(ctx, rec.ID) {
		return false, nil
	}

	if err := send(ctx); err != nil {
		return false, err
	}

	if err := c.MarkKnown(ctx, rec); err != nil {
		return true, err
	}
	c.knownMu.Lock()
	c.known = append(c.known, rec)
	c.knownMu.Unlock()
	return true, nil
}

// Known — копия записей, отмеченных за время жизни процесса.
func (c *Cache) Known() []listing.Listing {
	c.knownMu.RLock()
	defer c.knownMu.RUnlock()
	out := make([]listing.Listing, len(c.known))
	copy(out, c.known)
	return out
}

func (c *Cache) Close() error {
	return c.repo.Close()
}
