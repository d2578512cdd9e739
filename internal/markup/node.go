// Package markup — read-only представление HTML-дерева и примитивы поиска по нему.
package markup

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Node — узел разобранного документа. Текст и значения атрибутов уже
// декодированы от HTML-сущностей парсером.
type Node interface {
	// Children возвращает дочерние узлы по порядку, включая текстовые.
	Children() []Node
	// Attr возвращает значение атрибута и признак его наличия.
	Attr(name string) (string, bool)
	// Text — весь текст поддерева (аналог innerText).
	Text() string
	// NextSibling возвращает следующий узел того же уровня или nil.
	NextSibling() Node
}

type htmlNode struct {
	n *html.Node
}

// Parse разбирает HTML-документ и возвращает корневой узел.
func Parse(r io.Reader) (Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return Wrap(doc), nil
}

// ParseString — удобная обёртка для тестов и шаблонов.
func ParseString(s string) (Node, error) {
	return Parse(strings.NewReader(s))
}

// Wrap адаптирует узел x/net/html. nil остаётся nil.
func Wrap(n *html.Node) Node {
	if n == nil {
		return nil
	}
	return htmlNode{n: n}
}

func (h htmlNode) Children() []Node {
	var out []Node
	for c := h.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.CommentNode || c.Type == html.DoctypeNode {
			continue
		}
		out = append(out, htmlNode{n: c})
	}
	return out
}

func (h htmlNode) Attr(name string) (string, bool) {
	if h.n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range h.n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func (h htmlNode) Text() string {
	if h.n.Type == html.TextNode {
		return h.n.Data
	}
	var sb strings.Builder
	// обход без рекурсии: стек из узлов в порядке документа
	stack := []*html.Node{h.n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.Type == html.TextNode {
			sb.WriteString(cur.Data)
			continue
		}
		for c := cur.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	return sb.String()
}

func (h htmlNode) NextSibling() Node {
	for s := h.n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.CommentNode {
			continue
		}
		return htmlNode{n: s}
	}
	return nil
}

func (h htmlNode) String() string {
	if h.n.Type == html.ElementNode {
		return "<" + h.n.Data + ">"
	}
	return fmt.Sprintf("%q", h.n.Data)
}
