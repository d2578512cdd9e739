package app

import (
	"context"
	"errors"

	"flatwatch/internal/dedup"
	"flatwatch/internal/fetcher"
	"flatwatch/internal/listing"
	"flatwatch/internal/notify"
)

// FailureKind — категория ошибки цикла.
type FailureKind int

const (
	KindNone FailureKind = iota
	KindFetch
	KindMarkupShape
	KindIdentity
	KindDelivery
	KindStore
	KindCancelled
	KindUnknown
)

func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindFetch:
		return "fetch"
	case KindMarkupShape:
		return "markup_shape"
	case KindIdentity:
		return "identity"
	case KindDelivery:
		return "delivery"
	case KindStore:
		return "store"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Counted сообщает, увеличивает ли такая ошибка счётчик неудачных циклов.
func (k FailureKind) Counted() bool {
	switch k {
	case KindNone, KindDelivery:
		return false
	default:
		return true
	}
}

// Classify относит ошибку к одной из категорий.
func Classify(err error) FailureKind {
	var (
		storeErr    *dedup.StoreError
		identityErr *listing.IdentityFormatError
		fetchErr    *fetcher.FetchError
		deliveryErr *notify.DeliveryError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &storeErr):
		return KindStore
	case errors.As(err, &identityErr):
		return KindIdentity
	case errors.Is(err, listing.ErrMarkupShape):
		return KindMarkupShape
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.As(err, &deliveryErr):
		return KindDelivery
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindUnknown
	}
}
