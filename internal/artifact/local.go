package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// LocalStore is a filesystem-backed artifact store. Its FS is an afero.Fs
// so tests can inject afero.NewMemMapFs() instead of touching disk.
type LocalStore struct {
	fs   afero.Fs
	root string
}

// NewLocalStore builds a LocalStore rooted at root on the real OS
// filesystem, creating the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(absRoot, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{fs: fs, root: absRoot}, nil
}

// NewLocalStoreFS builds a LocalStore over an arbitrary afero.Fs, for
// tests that want an in-memory filesystem without the "memory" URI scheme
// semantics of MemoryStore.
func NewLocalStoreFS(fs afero.Fs, root string) (*LocalStore, error) {
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{fs: fs, root: root}, nil
}

func (s *LocalStore) Scheme() string { return "local" }

func (s *LocalStore) buildURI(normalized string) string {
	return fmt.Sprintf("%s://%s", s.Scheme(), normalized)
}

func (s *LocalStore) Put(path string, payload []byte) (Stored, error) {
	normalized, err := NormalizeArtifactPath(path)
	if err != nil {
		return Stored{}, err
	}
	dest := filepath.Join(s.root, filepath.FromSlash(normalized))
	if err := s.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Stored{}, err
	}
	if err := afero.WriteFile(s.fs, dest, payload, 0o644); err != nil {
		return Stored{}, err
	}
	return Stored{
		URI:       s.buildURI(normalized),
		SHA256:    ComputeSHA256(payload),
		SizeBytes: len(payload),
		LocalPath: dest,
	}, nil
}

func (s *LocalStore) Get(uri string) ([]byte, error) {
	p, err := s.uriToPath(uri)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, p)
}

func (s *LocalStore) Exists(uri string) (bool, error) {
	p, err := s.uriToPath(uri)
	if err != nil {
		return false, err
	}
	info, err := s.fs.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *LocalStore) List(prefix string) ([]string, error) {
	normalizedPrefix, err := s.normalizePrefix(prefix)
	if err != nil {
		return nil, err
	}
	base := filepath.Join(s.root, filepath.FromSlash(normalizedPrefix))
	info, err := s.fs.Stat(base)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return []string{s.buildURI(normalizedPrefix)}, nil
	}

	var uris []string
	err = afero.Walk(s.fs, base, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		uris = append(uris, s.buildURI(filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(uris)
	return uris, nil
}

func (s *LocalStore) Delete(uri string) error {
	p, err := s.uriToPath(uri)
	if err != nil {
		return err
	}
	err = s.fs.Remove(p)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *LocalStore) uriToPath(uri string) (string, error) {
	normalized, err := s.normalizePrefix(uri)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(normalized)), nil
}

func (s *LocalStore) normalizePrefix(prefix string) (string, error) {
	if strings.Contains(prefix, "://") {
		scheme, normalized, err := ParseArtifactURI(prefix)
		if err != nil {
			return "", err
		}
		if scheme != s.Scheme() {
			return "", fmt.Errorf("unsupported artifact scheme for local store: %s", scheme)
		}
		return normalized, nil
	}
	return NormalizeArtifactPath(prefix)
}
