// Package listing превращает узел-кандидат со страницы результатов в запись о квартире.
package listing

import (
	"strconv"
	"strings"
)

// Unknown подставляется вместо отсутствующего необязательного поля.
const Unknown = "unknown"

// Listing — одна квартира. Все поля кроме ID — свободный текст с сайта.
type Listing struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Price       string `json:"price"`
	LivingSpace string `json:"living_space"`
	Rooms       string `json:"rooms"`
	Available   string `json:"available"`
	Street      string `json:"street"`
	City        string `json:"city"`
	Thumb       string `json:"thumb"`
	Link        string `json:"link"`
	Layout      string `json:"layout"`
}

// Key — строковый ключ для хранилищ.
func (l Listing) Key() string {
	return strconv.FormatInt(l.ID, 10)
}

// Fields возвращает значения для подстановки в шаблон уведомления.
// Ключи совпадают с плейсхолдерами без символа @.
func (l Listing) Fields() map[string]string {
	return map[string]string{
		"id":      l.Key(),
		"title":   l.Title,
		"price":   l.Price,
		"size":    l.LivingSpace,
		"rooms":   l.Rooms,
		"date":    l.Available,
		"street":  l.Street,
		"city":    l.City,
		"address": l.Address(),
		"image":   l.Thumb,
		"link":    l.Link,
	}
}

// Address — «город, улица»; неизвестная часть пропускается.
func (l Listing) Address() string {
	var parts []string
	for _, p := range []string{l.City, l.Street} {
		if p != "" && p != Unknown {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return Unknown
	}
	return strings.Join(parts, ", ")
}
