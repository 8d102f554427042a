// Package sqlite stores each index version as one immutable SQLite file
// holding chunk text, term statistics and embedding blobs. A version is
// built in a staging directory, promoted by an atomic CURRENT pointer
// rename, and opened fully into memory for serving.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/core/ports"
)

const (
	currentPointerFile = "CURRENT"
	versionsDirName    = "versions"
	stagingDirName     = "staging"
	indexFileName      = "index.db"
)

// EmbedderFactory builds the query-time embedder for one version directory.
// Corpus-fitted embedders load their snapshot from the directory; remote
// embedders ignore it.
type EmbedderFactory func(versionDir string) (ports.Embedder, error)

// Catalog owns the version directories under one root and the single
// mutable active-version pointer. All mutation goes through Swap; readers
// pin the version they opened with and are unaffected by concurrent swaps.
type Catalog struct {
	root      string
	embedders EmbedderFactory

	mu     sync.Mutex
	active *Version
}

func OpenCatalog(root string, embedders EmbedderFactory) (*Catalog, error) {
	if root == "" {
		root = "./data/index"
	}
	for _, dir := range []string{root, filepath.Join(root, versionsDirName), filepath.Join(root, stagingDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}

	c := &Catalog{root: root, embedders: embedders}
	if err := c.Reload(); err != nil && !domain.IsKind(err, domain.ErrNoActiveIndex) {
		return nil, err
	}
	return c, nil
}

// Acquire pins the active version for one request. The returned handle must
// be released exactly once.
func (c *Catalog) Acquire() (ports.IndexHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil, domain.ErrNoActiveIndex
	}
	c.active.acquire()
	return c.active, nil
}

// ActiveInfo reports the metadata of the active version without pinning it.
func (c *Catalog) ActiveInfo() (domain.IndexVersion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return domain.IndexVersion{}, false
	}
	return c.active.Info(), true
}

// NewBuilder opens a staging area for a fresh version. An empty version id
// gets a new one minted.
func (c *Catalog) NewBuilder(ctx context.Context, versionID string) (ports.IndexBuilder, error) {
	versionID = sanitizeVersionID(versionID)
	if versionID == "" {
		versionID = NewVersionID()
	}
	return newBuilder(ctx, c.root, versionID)
}

// Swap activates a committed staged version: the CURRENT pointer file is
// replaced by an atomic rename, then the in-process pointer flips. Either
// the new version becomes fully active or the old one stays; there is no
// observable in-between. The previous version serves its in-flight readers
// until the last of them releases it.
func (c *Catalog) Swap(_ context.Context, versionID string) error {
	versionID = sanitizeVersionID(versionID)
	next, err := openVersion(c.versionDir(versionID), c.embedders)
	if err != nil {
		return fmt.Errorf("open staged version %s: %w", versionID, err)
	}

	if err := c.writeCurrentPointer(versionID); err != nil {
		next.retire()
		return err
	}

	c.mu.Lock()
	previous := c.active
	c.active = next
	c.mu.Unlock()

	if previous != nil {
		previous.retire()
	}
	slog.Info("index_swapped", "version_id", versionID, "doc_count", next.Info().DocCount)
	return nil
}

// Reload re-reads the CURRENT pointer and adopts the version it names.
// Used at startup and when another process (the reindex worker) swaps.
func (c *Catalog) Reload() error {
	raw, err := os.ReadFile(filepath.Join(c.root, currentPointerFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ErrNoActiveIndex
		}
		return fmt.Errorf("read current pointer: %w", err)
	}
	versionID := sanitizeVersionID(strings.TrimSpace(string(raw)))
	if versionID == "" {
		return domain.ErrNoActiveIndex
	}

	c.mu.Lock()
	if c.active != nil && c.active.Info().VersionID == versionID {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	next, err := openVersion(c.versionDir(versionID), c.embedders)
	if err != nil {
		return fmt.Errorf("open version %s: %w", versionID, err)
	}

	c.mu.Lock()
	previous := c.active
	c.active = next
	c.mu.Unlock()

	if previous != nil {
		previous.retire()
	}
	slog.Info("index_reloaded", "version_id", versionID, "doc_count", next.Info().DocCount)
	return nil
}

// Prune removes retired version directories, keeping the active one and the
// most recent keep others.
func (c *Catalog) Prune(keep int) error {
	activeID := ""
	if info, ok := c.ActiveInfo(); ok {
		activeID = info.VersionID
	}

	entries, err := os.ReadDir(filepath.Join(c.root, versionsDirName))
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}

	type candidate struct {
		name    string
		modTime int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == activeID {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{name: entry.Name(), modTime: info.ModTime().UnixNano()})
	}
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].modTime > candidates[i].modTime {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	for i, cand := range candidates {
		if i < keep {
			continue
		}
		if err := os.RemoveAll(c.versionDir(cand.name)); err != nil {
			slog.Warn("version_prune_failed", "version_id", cand.name, "error", err)
		}
	}
	return nil
}

// Close retires the active version. In-flight readers still finish.
func (c *Catalog) Close() {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()
	if active != nil {
		active.retire()
	}
}

// Root exposes the catalog directory for the pointer watcher.
func (c *Catalog) Root() string { return c.root }

func (c *Catalog) versionDir(versionID string) string {
	return filepath.Join(c.root, versionsDirName, versionID)
}

func (c *Catalog) writeCurrentPointer(versionID string) error {
	target := filepath.Join(c.root, currentPointerFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(versionID+"\n"), 0o644); err != nil {
		return fmt.Errorf("write current pointer: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("activate current pointer: %w", err)
	}
	return nil
}

// NewVersionID mints a fresh version identifier.
func NewVersionID() string {
	return "v-" + uuid.NewString()
}

// sanitizeVersionID keeps version ids path-safe.
func sanitizeVersionID(id string) string {
	id = strings.TrimSpace(id)
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
