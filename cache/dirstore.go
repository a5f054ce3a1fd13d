package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const metaSuffix = ".meta"

// blobTagLen is the number of hex digits of a blob file's tag.
const blobTagLen = 16

// loadAttempts bounds how often Load follows a record whose blob was
// replaced between reading the record and reading the blob.
const loadAttempts = 3

// DirStore keeps entries as files below a root directory.
//
// An entry is a record file "<name>.meta" and a blob file "<name>.<tag>",
// where tag is derived from the record bytes. Save renames the blob into
// place before the record, so the record on disk always names a blob
// written with it. A crash between the two renames leaves the previous
// pair intact.
type DirStore struct {
	root  string
	locks [32]sync.Mutex
}

// NewDirStore creates the root directory if needed.
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		return nil, errors.New("dir store: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("dir store: create root: %w", err)
	}
	return &DirStore{root: root}, nil
}

// Root returns the directory entries are stored under.
func (s *DirStore) Root() string {
	return s.root
}

// paths resolves loc to its directory and record file path. Locations that
// would escape the root are rejected.
func (s *DirStore) paths(loc Location) (dir, meta string, err error) {
	if loc.Name == "" || strings.ContainsAny(loc.Name, `/\`) {
		return "", "", fmt.Errorf("dir store: invalid entry name %q", loc.Name)
	}
	dir = filepath.Join(s.root, filepath.FromSlash(loc.Dir))
	rel, err := filepath.Rel(s.root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("dir store: location %q escapes root", loc.Dir)
	}
	return dir, filepath.Join(dir, loc.Name+metaSuffix), nil
}

// blobName is the blob file name paired with a record.
func blobName(name string, meta []byte) string {
	sum := sha256.Sum256(meta)
	return name + "." + hex.EncodeToString(sum[:])[:blobTagLen]
}

// isBlobOf reports whether file is a blob file of entry name.
func isBlobOf(name, file string) bool {
	tag, ok := strings.CutPrefix(file, name+".")
	if !ok || len(tag) != blobTagLen {
		return false
	}
	_, err := hex.DecodeString(tag)
	return err == nil
}

// lock serialises writers of one location within this process.
func (s *DirStore) lock(metaPath string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(metaPath))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

func (s *DirStore) Load(ctx context.Context, loc Location) ([]byte, []byte, error) {
	dir, metaPath, err := s.paths(loc)
	if err != nil {
		return nil, nil, err
	}
	for i := 0; i < loadAttempts; i++ {
		meta, err := os.ReadFile(metaPath)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		if err != nil {
			return nil, nil, fmt.Errorf("dir store: read metadata: %w", err)
		}
		blob, err := os.ReadFile(filepath.Join(dir, blobName(loc.Name, meta)))
		if errors.Is(err, fs.ErrNotExist) {
			// Replaced by a concurrent Save; read the new record.
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("dir store: read blob: %w", err)
		}
		return meta, blob, nil
	}
	// Metadata without its blob is a damaged entry, not a missing one.
	return nil, nil, fmt.Errorf("dir store: blob for %s is missing", loc)
}

// Save writes the blob under a name derived from meta, then renames the
// record over the previous one, then removes blobs no record names.
func (s *DirStore) Save(ctx context.Context, loc Location, meta, blob []byte) error {
	dir, metaPath, err := s.paths(loc)
	if err != nil {
		return err
	}
	mu := s.lock(metaPath)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("dir store: create dir: %w", err)
	}
	current := blobName(loc.Name, meta)
	if err := writeAtomic(filepath.Join(dir, current), blob); err != nil {
		return fmt.Errorf("dir store: write blob: %w", err)
	}
	if err := writeAtomic(metaPath, meta); err != nil {
		return fmt.Errorf("dir store: write metadata: %w", err)
	}
	return s.removeBlobs(dir, loc.Name, current)
}

// removeBlobs deletes the blob files of name except keep.
func (s *DirStore) removeBlobs(dir, name, keep string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dir store: list %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.Name() == keep || !isBlobOf(name, e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("dir store: remove stale blob: %w", err)
		}
	}
	return nil
}

func (s *DirStore) Remove(ctx context.Context, loc Location) error {
	dir, metaPath, err := s.paths(loc)
	if err != nil {
		return err
	}
	mu := s.lock(metaPath)
	mu.Lock()
	defer mu.Unlock()

	// The record goes first so a partially removed entry reads as missing.
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("dir store: remove: %w", err)
	}
	return s.removeBlobs(dir, loc.Name, "")
}

// Purge removes every entry below the root, keeping the root itself.
func (s *DirStore) Purge(ctx context.Context) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("dir store: purge: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return fmt.Errorf("dir store: purge: %w", err)
		}
	}
	return nil
}

func (s *DirStore) Close() error {
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
