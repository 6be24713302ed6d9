// Package blobstore хранит бинарные объекты (фотографии клиентов) по ключу.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound возвращается, если объекта с таким ключом нет.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidName возвращается для имён и ключей с попыткой выйти из каталога.
var ErrInvalidName = errors.New("invalid blob name")

// Store описывает хранилище объектов.
type Store interface {
	// Put сохраняет данные и возвращает сгенерированный ключ.
	Put(ctx context.Context, name string, data []byte) (string, error)
	// Get возвращает данные или ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete удаляет объект; отсутствие объекта ошибкой не считается.
	Delete(ctx context.Context, key string) error
}

// NewKey строит ключ вида "<uuid>_<имя файла>".
func NewKey(name string) (string, error) {
	cleaned, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return uuid.NewString() + "_" + cleaned, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	cleaned := filepath.Base(filepath.Clean("/" + filepath.ToSlash(name)))
	if cleaned == "/" || cleaned == "." || cleaned == "" {
		cleaned = "blob"
	}
	return cleaned, nil
}

func validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: key %q", ErrInvalidName, key)
	}
	return nil
}
