package normalize

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"flatwatch/internal/config"
)

var spacesRe = regexp.MustCompile(`\s+`)

type Normalizer struct {
	cfg config.NormalizeConfig
}

func NewNormalizer(cfg config.NormalizeConfig) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Default — NBSP заменяются, пробелы схлопываются.
func Default() *Normalizer {
	return NewNormalizer(config.NormalizeConfig{})
}

// Text убирает декоративные пробелы вокруг и внутри значения
func (n *Normalizer) Text(s string) string {
	if n.cfg.TrimNBSPEnabled() {
		// Заменяем NBSP на обычный пробел
		s = strings.ReplaceAll(s, "\u00a0", " ")
	}
	if n.cfg.CollapseSpacesEnabled() {
		s = spacesRe.ReplaceAllString(s, " ")
	}
	return strings.TrimSpace(s)
}

// HTMLToText превращает HTML-фрагмент в плоский текст (для каналов без HTML).
// Переводы строк сохраняются на месте <br>, <p> и <div>.
func (n *Normalizer) HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	// Удаляем script, style
	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, tr, li, h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		s.ReplaceWithHtml(" " + src + " ")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = n.Text(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// TruncatePreview обрезает текст до maxPreviewChars (в рунах)
func (n *Normalizer) TruncatePreview(text string) string {
	limit := n.cfg.MaxPreviewChars
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}

	// Находим последний пробел перед лимитом
	truncated := string(runes[:limit-1])
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		return truncated[:lastSpace] + "…"
	}

	return truncated + "…"
}

// ResolveURL делает ссылку абсолютной относительно base.
// Если base пустой или ref не разбирается, ref возвращается как есть.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == "" || ref == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
