package listing

import (
	"errors"
	"fmt"
)

// ErrMarkupShape объединяет ошибки структуры разметки: сайт поменял вёрстку.
var ErrMarkupShape = errors.New("unexpected markup shape")

var (
	// ErrFormatMismatch — у узла нет ожидаемого класса контейнера.
	ErrFormatMismatch = fmt.Errorf("%w: container marker class not present", ErrMarkupShape)
	// ErrMissingAnchor — не найдена ссылка или блок данных, идентификатор не вычислить.
	ErrMissingAnchor = fmt.Errorf("%w: structural anchor not found", ErrMarkupShape)
)

// IdentityFormatError — идентификатор не удалось извлечь из ссылки на объявление.
// Обычно означает, что сменилась схема URL.
type IdentityFormatError struct {
	Link  string
	Param string
	Err   error
}

func (e *IdentityFormatError) Error() string {
	return fmt.Sprintf("identity parameter %q could not be read from %q: %v", e.Param, e.Link, e.Err)
}

func (e *IdentityFormatError) Unwrap() error {
	return e.Err
}
