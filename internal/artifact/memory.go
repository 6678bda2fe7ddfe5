package artifact

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process dictionary-backed artifact store, the
// "memory://" scheme.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func (s *MemoryStore) Scheme() string { return "memory" }

func (s *MemoryStore) buildURI(normalized string) string {
	return fmt.Sprintf("%s://%s", s.Scheme(), normalized)
}

func (s *MemoryStore) Put(path string, payload []byte) (Stored, error) {
	normalized, err := NormalizeArtifactPath(path)
	if err != nil {
		return Stored{}, err
	}
	cp := append([]byte(nil), payload...)
	s.mu.Lock()
	s.objects[normalized] = cp
	s.mu.Unlock()
	return Stored{
		URI:       s.buildURI(normalized),
		SHA256:    ComputeSHA256(payload),
		SizeBytes: len(payload),
	}, nil
}

func (s *MemoryStore) Get(uri string) ([]byte, error) {
	normalized, err := s.normalizeURI(uri)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.objects[normalized]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", uri)
	}
	return payload, nil
}

func (s *MemoryStore) Exists(uri string) (bool, error) {
	normalized, err := s.normalizeURI(uri)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[normalized]
	return ok, nil
}

func (s *MemoryStore) List(prefix string) ([]string, error) {
	normalizedPrefix, err := s.normalizePrefix(prefix)
	if err != nil {
		return nil, err
	}
	prefixWithSep := normalizedPrefix + "/"

	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objects {
		if k == normalizedPrefix || strings.HasPrefix(k, prefixWithSep) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	uris := make([]string, len(keys))
	for i, k := range keys {
		uris[i] = s.buildURI(k)
	}
	return uris, nil
}

func (s *MemoryStore) Delete(uri string) error {
	normalized, err := s.normalizeURI(uri)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objects, normalized)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) normalizeURI(uri string) (string, error) {
	scheme, normalized, err := ParseArtifactURI(uri)
	if err != nil {
		return "", err
	}
	if scheme != s.Scheme() {
		return "", fmt.Errorf("unsupported artifact scheme for memory store: %s", scheme)
	}
	return normalized, nil
}

func (s *MemoryStore) normalizePrefix(prefix string) (string, error) {
	if strings.Contains(prefix, "://") {
		return s.normalizeURI(prefix)
	}
	return NormalizeArtifactPath(prefix)
}
