package refuel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage keeps the ticket photos attached to refuels
type Storage interface {
	// Save stores data under name and returns the name to reference it by
	Save(name string, data []byte) (string, error)

	// Get returns the data stored under name
	Get(name string) ([]byte, error)

	// Delete removes the data stored under name
	Delete(name string) error
}

// LocalStorage stores evidence files in a single directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	path, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

func (l *LocalStorage) Get(name string) ([]byte, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

func (l *LocalStorage) Delete(name string) error {
	path, err := l.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

func (l *LocalStorage) resolve(name string) (string, error) {
	if !validStorageName(name) {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	return filepath.Join(l.basePath, name), nil
}

// validStorageName accepts flat names only, so stored files stay in the base directory
func validStorageName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}
