package listing

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"flatwatch/internal/markup"
	"flatwatch/internal/normalize"
)

var errParamMissing = errors.New("parameter missing")

// Parser строит Listing из узла-кандидата по таблице Layout.
// Парсер не хранит состояния между вызовами и безопасен для параллельного использования.
type Parser struct {
	layout Layout
	norm   *normalize.Normalizer
	base   string
}

type Option func(*Parser)

// WithBaseURL — относительно него разрешаются ссылка и картинка.
func WithBaseURL(base string) Option {
	return func(p *Parser) {
		p.base = base
	}
}

func WithNormalizer(n *normalize.Normalizer) Option {
	return func(p *Parser) {
		if n != nil {
			p.norm = n
		}
	}
}

func NewParser(layout Layout, opts ...Option) *Parser {
	p := &Parser{
		layout: layout,
		norm:   normalize.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Layout возвращает раскладку, с которой работает парсер.
func (p *Parser) Layout() Layout {
	return p.layout
}

// Parse разбирает один узел-кандидат.
//
// Ошибки: ErrFormatMismatch, если у узла нет классов контейнера;
// ErrMissingAnchor, если нет ссылки или блока данных; *IdentityFormatError,
// если из ссылки не извлекается числовой идентификатор. Остальные
// отсутствующие поля получают значение Unknown.
func (p *Parser) Parse(node markup.Node) (Listing, error) {
	if node == nil {
		return Listing{}, ErrFormatMismatch
	}

	// Повторно проверяем маркер контейнера
	if !markup.HasClassTokens(node, p.layout.Container) {
		class, _ := node.Attr("class")
		return Listing{}, fmt.Errorf("%w: want %q, got %q", ErrFormatMismatch, p.layout.Container, class)
	}

	items := node.Children()

	// Ссылка на объявление
	link, ok := p.layout.Link.value(items)
	link = strings.TrimSpace(link)
	if !ok || link == "" {
		return Listing{}, fmt.Errorf("%w: detail link", ErrMissingAnchor)
	}

	// Блок с деталями
	if !p.layout.Data.IsZero() && p.layout.Data.resolve(items) == nil {
		return Listing{}, fmt.Errorf("%w: data block", ErrMissingAnchor)
	}

	id, err := p.identity(link)
	if err != nil {
		return Listing{}, err
	}

	rec := Listing{
		ID:          id,
		Title:       p.field(p.layout.Title, items),
		Price:       p.field(p.layout.Price, items),
		LivingSpace: p.field(p.layout.LivingSpace, items),
		Rooms:       p.field(p.layout.Rooms, items),
		Available:   p.field(p.layout.Available, items),
		Street:      p.field(p.layout.Street, items),
		City:        p.field(p.layout.City, items),
		Thumb:       p.field(p.layout.Thumb, items),
		Link:        normalize.ResolveURL(p.base, link),
		Layout:      p.layout.Name,
	}
	if rec.Thumb != Unknown {
		rec.Thumb = normalize.ResolveURL(p.base, rec.Thumb)
	}

	return rec, nil
}

func (p *Parser) field(rule FieldRule, items []markup.Node) string {
	if rule.IsZero() {
		return Unknown
	}
	v, ok := rule.value(items)
	if !ok {
		return Unknown
	}
	if v = p.norm.Text(v); v == "" {
		return Unknown
	}
	return v
}

// identity извлекает числовой параметр IDParam из ссылки.
func (p *Parser) identity(link string) (int64, error) {
	param := p.layout.IDParam
	u, err := url.Parse(link)
	if err != nil {
		return 0, &IdentityFormatError{Link: link, Param: param, Err: err}
	}
	values := u.Query()
	if !values.Has(param) {
		return 0, &IdentityFormatError{Link: link, Param: param, Err: errParamMissing}
	}
	id, err := strconv.ParseInt(strings.TrimSpace(values.Get(param)), 10, 64)
	if err != nil {
		return 0, &IdentityFormatError{Link: link, Param: param, Err: err}
	}
	return id, nil
}
