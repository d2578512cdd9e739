// Package file хранит по одному JSON-файлу на объявление в базовом каталоге.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"flatwatch/internal/observability"
	"flatwatch/internal/storage"
)

type Repository struct {
	dir    string
	logger *observability.Logger
	link   func(oldname, newname string) error
}

// NewRepository не создаёт каталог: он появляется при первой записи.
func NewRepository(dir string, logger *observability.Logger) (*Repository, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage path is empty")
	}
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Repository{dir: dir, logger: logger, link: os.Link}, nil
}

func (r *Repository) path(id int64) string {
	return filepath.Join(r.dir, strconv.FormatInt(id, 10)+".json")
}

// Exists проверяет наличие файла отметки. Отсутствие каталога = отметки нет.
func (r *Repository) Exists(_ context.Context, id int64) (bool, error) {
	_, err := os.Stat(r.path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat marker: %w", err)
}

// Put пишет отметку во временный файл и публикует её жёсткой ссылкой:
// ссылка не перезаписывает существующий файл, как O_EXCL. Если ФС не умеет
// жёсткие ссылки, файл создаётся напрямую с O_EXCL.
func (r *Repository) Put(_ context.Context, m *storage.Marker) (bool, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create storage dir: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to encode marker: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, ".marker-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("Failed to remove temp marker", "path", tmpName, "error", err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("failed to write marker: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("failed to sync marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to close marker: %w", err)
	}

	target := r.path(m.Listing.ID)
	err = r.link(tmpName, target)
	if err != nil && linkUnsupported(err) {
		r.logger.Debug("Hard links unsupported, writing marker in place", "path", target, "error", err)
		err = writeExclusive(target, data)
	}
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to publish marker: %w", err)
	}
	return true, nil
}

func linkUnsupported(err error) bool {
	return errors.Is(err, errors.ErrUnsupported) ||
		errors.Is(err, syscall.EPERM) ||
		errors.Is(err, syscall.EXDEV)
}

// writeExclusive создаёт файл только если его ещё нет. Недописанный файл удаляется.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return err
}

func (r *Repository) Close() error {
	return nil
}
