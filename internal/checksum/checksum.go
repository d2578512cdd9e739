package checksum

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"flatwatch/internal/listing"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// ListingHash генерирует SHA256 хеш объявления
// Формула: SHA256(id|title|price|size|rooms|date|thumb)
func (g *Generator) ListingHash(l listing.Listing) string {
	content := strings.Join([]string{
		l.Key(), l.Title, l.Price, l.LivingSpace, l.Rooms, l.Available, l.Thumb,
	}, "|")

	// Вычисляем SHA256
	hash := sha256.Sum256([]byte(content))

	// Возвращаем hex
	return fmt.Sprintf("%x", hash)
}
