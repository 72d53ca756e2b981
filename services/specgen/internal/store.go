package internal

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/forge-ai/testgen/shared/apierr"
	"github.com/google/uuid"
)

// Store owns the two working directories: transient uploads and the
// generated test files offered for download.
type Store struct {
	uploads   string
	generated string
}

func NewStore(uploadDir, generatedDir string) (*Store, error) {
	for _, dir := range []string{uploadDir, generatedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &Store{uploads: uploadDir, generated: generatedDir}, nil
}

// SaveUpload writes r to "<uuid>_<name>" in the upload directory and
// returns the path. The caller removes it with RemoveUpload.
func (s *Store) SaveUpload(name string, r io.Reader) (string, error) {
	path := filepath.Join(s.uploads, uuid.New().String()+"_"+secureFilename(name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload: %w", err)
	}
	return path, nil
}

func (s *Store) RemoveUpload(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// SaveTests writes content as "<title>_Tests.java" and returns the bare
// filename. An existing file for the same title is replaced.
func (s *Store) SaveTests(title, content string) (string, error) {
	name := TestsFilename(title)
	tmp, err := os.CreateTemp(s.generated, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create tests file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write tests file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close tests file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.generated, name)); err != nil {
		return "", fmt.Errorf("store tests file: %w", err)
	}
	return name, nil
}

// Open returns a generated file by bare name. Anything that is not a plain
// file directly inside the generated directory is NotFound.
func (s *Store) Open(name string) (*os.File, fs.FileInfo, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return nil, nil, apierr.New(apierr.NotFound, "File not found: %s", name)
	}
	f, err := os.Open(filepath.Join(s.generated, name))
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.NotFound, err, "File not found: "+name)
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, apierr.New(apierr.NotFound, "File not found: %s", name)
	}
	return f, info, nil
}

// TestsFilename is the download name for tests generated from title.
func TestsFilename(title string) string {
	base := secureFilename(title)
	if base == "" {
		base = "API"
	}
	return base + "_Tests.java"
}

// secureFilename reduces name to ASCII letters, digits, '.', '_' and '-',
// turning whitespace and path separators into underscores. Leading and
// trailing dots and underscores are dropped, so the result never names a
// parent directory or hidden file. It can be empty.
func secureFilename(name string) string {
	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")

	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			sb.WriteRune(r)
		}
	}
	return strings.Trim(sb.String(), "._")
}
