package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// Все функции поиска возвращают nil, если ничего не найдено: это обычный
// исход, решение о фатальности принимает вызывающий код.

// walk обходит узлы в глубину (pre-order) через явный стек.
// visit возвращает true, чтобы остановить обход.
func walk(nodes []Node, recursive bool, visit func(Node) bool) Node {
	if !recursive {
		for _, n := range nodes {
			if n != nil && visit(n) {
				return n
			}
		}
		return nil
	}

	stack := make([]Node, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, nodes[i])
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil {
			continue
		}
		if visit(cur) {
			return cur
		}
		children := cur.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return nil
}

// HasClassToken проверяет, что атрибут class равен token целиком
// или содержит его как отдельное слово.
func HasClassToken(n Node, token string) bool {
	if n == nil || token == "" {
		return false
	}
	class, ok := n.Attr("class")
	if !ok {
		return false
	}
	if class == token {
		return true
	}
	for _, t := range strings.Fields(class) {
		if t == token {
			return true
		}
	}
	return false
}

// HasClassTokens — все слова из tokens присутствуют в class узла.
func HasClassTokens(n Node, tokens string) bool {
	fields := strings.Fields(tokens)
	if len(fields) == 0 {
		return false
	}
	for _, t := range fields {
		if !HasClassToken(n, t) {
			return false
		}
	}
	return true
}

// FindByClassToken ищет первый узел с классом token.
// При recursive=true просматриваются и все потомки.
func FindByClassToken(nodes []Node, token string, recursive bool) Node {
	return walk(nodes, recursive, func(n Node) bool {
		return HasClassToken(n, token)
	})
}

// FindByAttributePresence ищет в глубину первый узел с атрибутом name,
// значение атрибута не важно.
func FindByAttributePresence(nodes []Node, name string) Node {
	return walk(nodes, true, func(n Node) bool {
		_, ok := n.Attr(name)
		return ok
	})
}

// FindByID просматривает только переданные узлы, без потомков.
func FindByID(nodes []Node, id string) Node {
	return walk(nodes, false, func(n Node) bool {
		v, ok := n.Attr("id")
		return ok && v == id
	})
}

// FindByExactText ищет в глубину первый узел, чей текст совпадает с text.
func FindByExactText(nodes []Node, text string) Node {
	return walk(nodes, true, func(n Node) bool {
		return n.Text() == text
	})
}

// ValueAfterLabel возвращает узел через один после метки:
// метка → разделитель → значение.
func ValueAfterLabel(label Node) Node {
	if label == nil {
		return nil
	}
	sep := label.NextSibling()
	if sep == nil {
		return nil
	}
	return sep.NextSibling()
}

// ElementChild возвращает i-й (с нуля) дочерний элемент, пропуская
// текстовые узлы из одних пробелов.
func ElementChild(n Node, i int) Node {
	if n == nil || i < 0 {
		return nil
	}
	idx := 0
	for _, c := range n.Children() {
		if isBlankText(c) {
			continue
		}
		if idx == i {
			return c
		}
		idx++
	}
	return nil
}

func isBlankText(n Node) bool {
	if h, ok := n.(htmlNode); ok {
		return h.n.Type == html.TextNode && strings.TrimSpace(h.n.Data) == ""
	}
	return len(n.Children()) == 0 && strings.TrimSpace(n.Text()) == ""
}
