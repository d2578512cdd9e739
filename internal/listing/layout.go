package listing

import (
	"fmt"

	"flatwatch/internal/markup"
)

// FieldRule описывает, где в карточке лежит значение поля.
//
// Порядок разрешения: сначала Block сужает область поиска до потомков
// найденного блока, затем один из селекторов Class, ID, Label или Attr
// выбирает узел, затем Child берёт его позиционного потомка.
// Значение — атрибут Attr, либо текст узла, если Attr пуст или Text=true.
type FieldRule struct {
	Block string `yaml:"block,omitempty"`
	Class string `yaml:"class,omitempty"`
	ID    string `yaml:"id,omitempty"`
	Label string `yaml:"label,omitempty"`
	Attr  string `yaml:"attr,omitempty"`
	Child *int   `yaml:"child,omitempty"`
	Text  bool   `yaml:"text,omitempty"`
}

// IsZero — правило не задано.
func (r FieldRule) IsZero() bool {
	return r.Block == "" && r.Class == "" && r.ID == "" && r.Label == "" && r.Attr == "" && r.Child == nil
}

// resolve ищет узел правила среди nodes. Возвращает nil, если не найден.
func (r FieldRule) resolve(nodes []markup.Node) markup.Node {
	var target markup.Node
	if r.Block != "" {
		target = markup.FindByClassToken(nodes, r.Block, true)
		if target == nil {
			return nil
		}
		nodes = target.Children()
	}

	switch {
	case r.Class != "":
		target = markup.FindByClassToken(nodes, r.Class, true)
	case r.ID != "":
		target = markup.FindByID(nodes, r.ID)
	case r.Label != "":
		target = markup.ValueAfterLabel(markup.FindByExactText(nodes, r.Label))
	case r.Attr != "":
		target = markup.FindByAttributePresence(nodes, r.Attr)
	}

	if r.Child != nil {
		target = markup.ElementChild(target, *r.Child)
	}
	return target
}

// value извлекает строковое значение правила.
func (r FieldRule) value(nodes []markup.Node) (string, bool) {
	n := r.resolve(nodes)
	if n == nil {
		return "", false
	}
	if r.Attr != "" && !r.Text {
		return n.Attr(r.Attr)
	}
	return n.Text(), true
}

// Layout — таблица соответствий для одного варианта вёрстки сайта.
type Layout struct {
	Name string `yaml:"name"`
	// Container — классы, которые обязан нести узел-кандидат.
	Container string `yaml:"container"`
	// Sponsored — класс-маркер рекламной карточки где угодно внутри кандидата.
	Sponsored string `yaml:"sponsored"`
	// Query — выражение выбора кандидатов по умолчанию (XPath или CSS).
	Query string `yaml:"query"`
	// IDParam — параметр ссылки, из которого берётся идентификатор.
	IDParam string `yaml:"id_param"`

	// Link и Data — структурные якоря, без них запись не строится.
	Link FieldRule `yaml:"link"`
	Data FieldRule `yaml:"data"`

	Title       FieldRule `yaml:"title"`
	Price       FieldRule `yaml:"price"`
	LivingSpace FieldRule `yaml:"living_space"`
	Rooms       FieldRule `yaml:"rooms"`
	Available   FieldRule `yaml:"available"`
	Street      FieldRule `yaml:"street"`
	City        FieldRule `yaml:"city"`
	Thumb       FieldRule `yaml:"thumb"`
}

// Validate проверяет минимальный набор правил
func (l *Layout) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("layout name is required")
	}
	if l.Container == "" {
		return fmt.Errorf("layout %s: container is required", l.Name)
	}
	if l.Link.IsZero() {
		return fmt.Errorf("layout %s: link rule is required", l.Name)
	}
	if l.IDParam == "" {
		return fmt.Errorf("layout %s: id_param is required", l.Name)
	}
	return nil
}

func child(i int) *int { return &i }

// CardLayout — карточки immo-preview-group: ссылка и картинка находятся
// по наличию атрибута, детали лежат в блоке immo-data парами «метка, значение».
func CardLayout() Layout {
	return Layout{
		Name:      "card",
		Container: "immo-preview-group asidemain-container",
		Sponsored: "immo-sponsored",
		Query:     "//div[@class='immo-preview-group asidemain-container']",
		IDParam:   "object_id",

		Link: FieldRule{Attr: "href"},
		Data: FieldRule{Class: "immo-data"},

		Title:       FieldRule{Attr: "href", Text: true},
		Price:       FieldRule{Block: "immo-data", Label: "Kaltmiete:"},
		LivingSpace: FieldRule{Block: "immo-data", Label: "Größe:"},
		Rooms:       FieldRule{Block: "immo-data", Label: "Zimmeranzahl: "},
		Available:   FieldRule{Block: "immo-data", Label: "Verfügbar ab:"},
		Thumb:       FieldRule{Attr: "src"},
	}
}

// ListLayout — строки trefferliste-item: поля в блоках по классам,
// адрес и цифры лежат позиционно (значение, <br>, значение, ...).
func ListLayout() Layout {
	return Layout{
		Name:      "list",
		Container: "trefferliste-item",
		Sponsored: "trefferliste-item-top",
		Query:     "//div[@class='trefferliste-item']",
		IDParam:   "object_id",

		Link: FieldRule{Block: "trefferliste-item-header", Attr: "href"},
		Data: FieldRule{Class: "trefferliste-item-content"},

		Title:       FieldRule{Block: "trefferliste-item-header", Child: child(0)},
		Price:       FieldRule{Block: "trefferliste-item-daten", Child: child(0)},
		LivingSpace: FieldRule{Block: "trefferliste-item-daten", Child: child(2)},
		Rooms:       FieldRule{Block: "trefferliste-item-daten", Child: child(4)},
		Available:   FieldRule{Block: "trefferliste-item-adresse", Child: child(4)},
		Street:      FieldRule{Block: "trefferliste-item-adresse", Child: child(0)},
		City:        FieldRule{Block: "trefferliste-item-adresse", Child: child(2)},
		Thumb:       FieldRule{Block: "trefferliste-item-thumb", Attr: "src"},
	}
}

// Builtin возвращает встроенные раскладки по имени.
func Builtin() map[string]Layout {
	card, list := CardLayout(), ListLayout()
	return map[string]Layout{card.Name: card, list.Name: list}
}
