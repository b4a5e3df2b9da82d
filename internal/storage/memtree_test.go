package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sync"
)

// memTree is an in-memory Tree with the same revision semantics as the
// contents API: a write must carry the current sha of an existing file.
type memTree struct {
	mu       sync.Mutex
	branches map[string]string
	files    map[string]map[string][]byte // branch -> path -> body
	writes   int

	failNextWrite error
	beforeWrite   func()
}

func newMemTree() *memTree {
	return &memTree{
		branches: map[string]string{"main": "c0ffee"},
		files:    map[string]map[string][]byte{},
	}
}

func sum(body []byte) string {
	h := sha1.Sum(body)
	return hex.EncodeToString(h[:])
}

func (m *memTree) GetContent(_ context.Context, path, ref string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[ref]; !ok {
		return nil, "", ErrNotFound
	}
	body, ok := m.files[ref][path]
	if !ok {
		return nil, "", ErrNotFound
	}
	return append([]byte(nil), body...), sum(body), nil
}

func (m *memTree) CreateOrUpdate(_ context.Context, path, ref string, body []byte, revision, _ string) (string, error) {
	if hook := m.beforeWrite; hook != nil {
		m.beforeWrite = nil
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNextWrite; err != nil {
		m.failNextWrite = nil
		return "", err
	}
	if _, ok := m.branches[ref]; !ok {
		return "", ErrNotFound
	}
	current, exists := m.files[ref][path]
	switch {
	case exists && revision != sum(current):
		return "", ErrConflict
	case !exists && revision != "":
		return "", ErrNotFound
	}
	if m.files[ref] == nil {
		m.files[ref] = map[string][]byte{}
	}
	m.files[ref][path] = append([]byte(nil), body...)
	m.writes++
	return sum(body), nil
}

func (m *memTree) BranchHead(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sha, ok := m.branches[name]
	if !ok {
		return "", ErrNotFound
	}
	return sha, nil
}

func (m *memTree) DefaultBranchHead(ctx context.Context) (string, error) {
	return m.BranchHead(ctx, "main")
}

func (m *memTree) CreateBranch(_ context.Context, name, fromSHA string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[name]; ok {
		return errors.New("reference already exists")
	}
	m.branches[name] = fromSHA
	return nil
}

func (m *memTree) raw(branch, path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.files[branch][path])
}
