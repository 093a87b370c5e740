package fs

import (
	"os"
	"path/filepath"

	"go.uber.org/fx"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// FS wraps the filesystem operations used to read settings subjects, extension manifests and server info files.
type FS interface {
	MkdirAll(path string) error
	FileExists(path string) (bool, error)
	ReadFile(name string) ([]byte, error)
	// WriteFile replaces the contents of name atomically, so readers never observe a partially written file.
	WriteFile(name string, data []byte) error
	Remove(name string) error
	Abs(path string) (string, error)
}

type fsImpl struct{}

// New creates a new FS backed by the operating system.
func New() FS {
	return fsImpl{}
}

// MkdirAll creates a directory and all its parents.
func (fsImpl) MkdirAll(path string) error { return os.MkdirAll(path, os.ModePerm) }

func (fsImpl) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (fsImpl) WriteFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

func (fsImpl) Remove(name string) error {
	return os.Remove(name)
}

func (fsImpl) Abs(path string) (string, error) {
	return filepath.Abs(path)
}

func (fsImpl) FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}
