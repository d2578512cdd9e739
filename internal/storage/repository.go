package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"flatwatch/internal/checksum"
	"flatwatch/internal/listing"
)

// Marker — отметка «уведомление отправлено» для одного объявления.
// Запись хранится целиком для аудита.
type Marker struct {
	Listing    listing.Listing `json:"listing"`
	CheckSum   string          `json:"checksum"` // SHA256 полей объявления
	NotifiedAt time.Time       `json:"notified_at"`
}

// NewMarker строит отметку с контрольной суммой объявления.
func NewMarker(l listing.Listing, at time.Time) *Marker {
	return &Marker{
		Listing:    l,
		CheckSum:   checksum.NewGenerator().ListingHash(l),
		NotifiedAt: at.UTC(),
	}
}

// Repository интерфейс хранилища отметок. Отметки не удаляются.
type Repository interface {
	// Exists проверяет наличие отметки по идентификатору
	Exists(ctx context.Context, id int64) (bool, error)

	// Put сохраняет отметку, возвращает created=false, если она уже была
	Put(ctx context.Context, m *Marker) (created bool, err error)

	Close() error
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// ValidateTableName проверяет имя таблицы: оно подставляется в SQL напрямую.
func ValidateTableName(name string) error {
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("invalid table name: %q", name)
	}
	return nil
}
