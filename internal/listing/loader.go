package listing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type layoutsFile struct {
	Layouts []Layout `yaml:"layouts"`
}

// LoadLayouts загружает дополнительные раскладки из YAML файла.
// Раскладки из файла перекрывают встроенные с тем же именем.
func LoadLayouts(filePath string) (map[string]Layout, error) {
	layouts := Builtin()
	if filePath == "" {
		return layouts, nil
	}

	// Открываем файл
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open layouts file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	// Парсим YAML
	var parsed layoutsFile
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse layouts YAML: %w", err)
	}

	for i := range parsed.Layouts {
		l := parsed.Layouts[i]
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("layouts file %s: %w", filePath, err)
		}
		layouts[l.Name] = l
	}

	return layouts, nil
}

// ResolveLayout выбирает раскладку по имени среди встроенных и загруженных из файла.
func ResolveLayout(name, filePath string) (Layout, error) {
	layouts, err := LoadLayouts(filePath)
	if err != nil {
		return Layout{}, err
	}
	l, ok := layouts[name]
	if !ok {
		return Layout{}, fmt.Errorf("unknown layout: %s", name)
	}
	return l, nil
}
