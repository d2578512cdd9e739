package source

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Selector выбирает узлы-кандидаты из разобранного документа.
type Selector interface {
	Select(root *html.Node) []*html.Node
	String() string
}

// CompileSelector разбирает выражение выбора. Выражения, начинающиеся
// с "/" или "(", считаются XPath, остальные CSS.
func CompileSelector(query string) (Selector, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("selection query is empty")
	}

	if strings.HasPrefix(query, "/") || strings.HasPrefix(query, "(") {
		expr, err := xpath.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", query, err)
		}
		return xpathSelector{query: query, expr: expr}, nil
	}

	if _, err := cascadia.ParseGroup(query); err != nil {
		return nil, fmt.Errorf("invalid css selector %q: %w", query, err)
	}
	return cssSelector{query: query}, nil
}

type xpathSelector struct {
	query string
	expr  *xpath.Expr
}

func (s xpathSelector) Select(root *html.Node) []*html.Node {
	return htmlquery.QuerySelectorAll(root, s.expr)
}

func (s xpathSelector) String() string { return "xpath:" + s.query }

type cssSelector struct {
	query string
}

func (s cssSelector) Select(root *html.Node) []*html.Node {
	return goquery.NewDocumentFromNode(root).Find(s.query).Nodes
}

func (s cssSelector) String() string { return "css:" + s.query }
