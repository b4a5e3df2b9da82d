// Package storage keeps the bridge's JSON documents on a dedicated branch of
// a hosted repository and exposes compare-and-swap writes over them.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"telegram-bridge/internal/metrics"

	"github.com/rs/zerolog"
)

type Kind string

const (
	KindChats   Kind = "chats"
	KindUsers   Kind = "users"
	KindSession Kind = "session"
)

var fileNames = map[Kind]string{
	KindChats:   "chat-storage.json",
	KindUsers:   "user-base.json",
	KindSession: "session-storage.json",
}

var emptyDocuments = map[Kind]string{
	KindChats:   `{"chats":[]}`,
	KindUsers:   `{"users":{}}`,
	KindSession: `{"session":null}`,
}

var (
	// ErrNotFound is returned by a Tree when the branch or path does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned by a Tree when the supplied revision is stale.
	ErrConflict = errors.New("storage: revision conflict")
	// ErrNoChange lets an Update mutator skip the write.
	ErrNoChange = errors.New("storage: no change")
)

// StorageFailure wraps every error that leaves the store.
type StorageFailure struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageFailure) Unwrap() error { return e.Err }

// Tree is the slice of the Git-hosting API the store needs.
type Tree interface {
	GetContent(ctx context.Context, path, ref string) (body []byte, revision string, err error)
	CreateOrUpdate(ctx context.Context, path, ref string, body []byte, revision, message string) (newRevision string, err error)
	BranchHead(ctx context.Context, name string) (sha string, err error)
	DefaultBranchHead(ctx context.Context) (sha string, err error)
	CreateBranch(ctx context.Context, name, fromSHA string) error
}

type Store struct {
	tree   Tree
	branch string
	root   string
	log    zerolog.Logger
}

// New returns a store writing under plugin-store/<owner>/<pluginRepo>/ on branch.
func New(tree Tree, owner, pluginRepo, branch string, log zerolog.Logger) *Store {
	return &Store{
		tree:   tree,
		branch: branch,
		root:   path.Join("plugin-store", owner, pluginRepo),
		log:    log.With().Str("component", "record_store").Logger(),
	}
}

func (s *Store) Path(kind Kind) string {
	return path.Join(s.root, fileNames[kind])
}

// Get decodes the document of kind into v and returns its revision. A missing
// branch or file is bootstrapped and read again once.
func (s *Store) Get(ctx context.Context, kind Kind, v any) (string, error) {
	p := s.Path(kind)
	body, rev, err := s.tree.GetContent(ctx, p, s.branch)
	if errors.Is(err, ErrNotFound) {
		if err := s.Bootstrap(ctx, kind); err != nil {
			return "", err
		}
		body, rev, err = s.tree.GetContent(ctx, p, s.branch)
	}
	if err != nil {
		return "", s.fail(kind, "get", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return "", s.fail(kind, "get", fmt.Errorf("decode %s: %w", p, err))
	}
	metrics.StorageOps.WithLabelValues(string(kind), "get", "ok").Inc()
	return rev, nil
}

// Put writes v as the document of kind.
//
// With a revision the write is a compare-and-swap and a stale revision fails
// with ErrConflict. Without one the current revision is fetched just before
// writing, so concurrent writers race and the last one wins. Any other write
// failure bootstraps the document and retries exactly once.
func (s *Store) Put(ctx context.Context, kind Kind, v any, revision string) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s.fail(kind, "put", err)
	}

	checked := revision != ""
	if !checked {
		revision, err = s.currentRevision(ctx, kind)
		if err != nil {
			return s.fail(kind, "put", err)
		}
	}

	p := s.Path(kind)
	msg := fmt.Sprintf("chore: update %s", fileNames[kind])
	_, err = s.tree.CreateOrUpdate(ctx, p, s.branch, body, revision, msg)
	if err == nil {
		metrics.StorageOps.WithLabelValues(string(kind), "put", "ok").Inc()
		return nil
	}
	if checked && errors.Is(err, ErrConflict) {
		metrics.StorageOps.WithLabelValues(string(kind), "put", "conflict").Inc()
		return s.fail(kind, "put", err)
	}

	s.log.Warn().Err(err).Str("kind", string(kind)).Msg("write failed, bootstrapping and retrying once")
	if err := s.Bootstrap(ctx, kind); err != nil {
		return err
	}
	revision, err = s.currentRevision(ctx, kind)
	if err != nil {
		return s.fail(kind, "put", err)
	}
	if _, err := s.tree.CreateOrUpdate(ctx, p, s.branch, body, revision, msg); err != nil {
		return s.fail(kind, "put", err)
	}
	metrics.StorageOps.WithLabelValues(string(kind), "put", "ok").Inc()
	return nil
}

// Bootstrap makes sure the storage branch exists and the document of kind
// holds at least an empty, valid body.
func (s *Store) Bootstrap(ctx context.Context, kind Kind) error {
	if _, err := s.tree.BranchHead(ctx, s.branch); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return s.fail(kind, "bootstrap", err)
		}
		head, err := s.tree.DefaultBranchHead(ctx)
		if err != nil {
			return s.fail(kind, "bootstrap", fmt.Errorf("default branch head: %w", err))
		}
		if err := s.tree.CreateBranch(ctx, s.branch, head); err != nil {
			return s.fail(kind, "bootstrap", fmt.Errorf("create branch %s: %w", s.branch, err))
		}
		s.log.Info().Str("branch", s.branch).Msg("created storage branch")
	}

	p := s.Path(kind)
	_, _, err := s.tree.GetContent(ctx, p, s.branch)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, ErrNotFound):
		return s.fail(kind, "bootstrap", err)
	}

	msg := fmt.Sprintf("chore: create %s", fileNames[kind])
	if _, err := s.tree.CreateOrUpdate(ctx, p, s.branch, []byte(emptyDocuments[kind]), "", msg); err != nil {
		return s.fail(kind, "bootstrap", fmt.Errorf("create %s: %w", p, err))
	}
	s.log.Info().Str("path", p).Msg("created storage document")
	metrics.StorageOps.WithLabelValues(string(kind), "bootstrap", "ok").Inc()
	return nil
}

// BootstrapAll bootstraps every document kind.
func (s *Store) BootstrapAll(ctx context.Context) error {
	for _, kind := range []Kind{KindChats, KindUsers, KindSession} {
		if err := s.Bootstrap(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) currentRevision(ctx context.Context, kind Kind) (string, error) {
	_, rev, err := s.tree.GetContent(ctx, s.Path(kind), s.branch)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return rev, err
}

func (s *Store) fail(kind Kind, op string, err error) error {
	var sf *StorageFailure
	if errors.As(err, &sf) {
		return err
	}
	metrics.StorageOps.WithLabelValues(string(kind), op, "error").Inc()
	return &StorageFailure{Kind: kind, Op: op, Err: err}
}

const maxUpdateAttempts = 3

// Update runs a read-modify-write cycle on the document of kind, retrying
// from a fresh read when another writer got in first.
func Update[T any](ctx context.Context, s *Store, kind Kind, mutate func(doc *T) error) error {
	var err error
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		var doc T
		rev, gerr := s.Get(ctx, kind, &doc)
		if gerr != nil {
			return gerr
		}

		if merr := mutate(&doc); merr != nil {
			if errors.Is(merr, ErrNoChange) {
				return nil
			}
			return merr
		}

		err = s.Put(ctx, kind, &doc, rev)
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		s.log.Debug().Int("attempt", attempt).Str("kind", string(kind)).Msg("revision conflict, retrying")
	}
	return err
}
