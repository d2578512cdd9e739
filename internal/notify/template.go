package notify

import (
	_ "embed"
	"fmt"
	"html"
	"os"
	"sort"
	"strings"
)

//go:embed templates/listing.html
var defaultTemplate string

//go:embed templates/failure.html
var failureTemplate string

// Renderer подставляет значения в плейсхолдеры вида @name, экранируя их для HTML.
type Renderer struct {
	template string
}

// NewRenderer читает шаблон из файла; пустой путь — встроенный шаблон.
func NewRenderer(templateFile string) (*Renderer, error) {
	if templateFile == "" {
		return &Renderer{template: defaultTemplate}, nil
	}
	data, err := os.ReadFile(templateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return &Renderer{template: string(data)}, nil
}

// Render заменяет @key на html-экранированное значение fields[key].
// Длинные ключи подставляются раньше коротких, чтобы @id не съел начало @idx.
func (r *Renderer) Render(fields map[string]string) string {
	return render(r.template, fields)
}

// RenderFailure — тело письма об остановке после слишком многих ошибок.
func RenderFailure(cause error) string {
	return render(failureTemplate, map[string]string{"error": cause.Error()})
}

func render(tpl string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "@"+k, html.EscapeString(fields[k]))
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
