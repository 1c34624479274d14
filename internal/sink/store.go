package sink

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidName = errors.New("sink: invalid artifact name")
	ErrNotFound    = errors.New("sink: artifact not found")
)

type StoredArtifact struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store keeps artifacts as flat files in one directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("sink: storage dir required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create storage dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes the upload atomically under its base name. Names carrying any
// path component are rejected.
func (s *Store) Save(fh *multipart.FileHeader) (StoredArtifact, error) {
	name, err := cleanName(fh.Filename)
	if err != nil {
		return StoredArtifact{}, err
	}
	src, err := fh.Open()
	if err != nil {
		return StoredArtifact{}, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return StoredArtifact{}, err
	}
	n, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		return StoredArtifact{}, errors.Join(copyErr, closeErr)
	}
	target := filepath.Join(s.dir, name)
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return StoredArtifact{}, err
	}
	return StoredArtifact{Name: name, Size: n, Modified: time.Now().UTC()}, nil
}

// List returns stored artifacts sorted by name, skipping in-flight temp files.
func (s *Store) List() ([]StoredArtifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]StoredArtifact, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".upload-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, StoredArtifact{Name: e.Name(), Size: info.Size(), Modified: info.ModTime().UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Path resolves a stored artifact by name.
func (s *Store) Path(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, clean)
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	return path, nil
}

func cleanName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".upload-") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, raw)
	}
	return name, nil
}
