package driver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"cfgprep/internal/pipeline"
)

// payloadSchema changes whenever DiskPayload or the binary graph encoding
// does; entries with another schema are ignored.
const payloadSchema uint16 = 1

const entryExt = ".cfgres"

// DiskCache stores pipeline results as one msgpack file per ResultKey under
// <dir>/<first key byte>/. It is safe for concurrent use; a nil cache
// misses every lookup and drops every write.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// DiskPayload is one cached pipeline result.
type DiskPayload struct {
	Schema uint16 `msgpack:"schema"`

	// Graph is the output graph in the binary graph encoding.
	Graph []byte         `msgpack:"graph"`
	Order []uint32       `msgpack:"order"`
	Loops []LoopPayload  `msgpack:"loops"`
	Stats pipeline.Stats `msgpack:"stats"`
}

// LoopPayload is the cached form of pipeline.Loop.
type LoopPayload struct {
	Header  uint32   `msgpack:"header"`
	Members []uint32 `msgpack:"members"`
	Parent  int      `msgpack:"parent"`
	Depth   int      `msgpack:"depth"`
}

// DefaultCacheDir returns the per-user cache directory for app.
func DefaultCacheDir(app string) (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate user cache dir: %w", err)
	}
	return filepath.Join(base, app), nil
}

// OpenDiskCache opens the cache rooted at dir, creating it if needed.
func OpenDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *DiskCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *DiskCache) entryPath(key Digest) string {
	name := hex.EncodeToString(key[:])
	return filepath.Join(c.dir, name[:2], name+entryExt)
}

// Put stores payload under key. The entry appears atomically: readers see
// either the previous entry or the complete new one.
func (c *DiskCache) Put(key Digest, payload *DiskPayload) error {
	if c == nil {
		return nil
	}
	payload.Schema = payloadSchema
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	path := c.entryPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return err
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name()) //nolint:errcheck
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name()) //nolint:errcheck
		return err
	}
	return nil
}

// Get loads the entry for key into out. A missing entry or one written
// with another schema is a miss, not an error.
func (c *DiskCache) Get(key Digest, out *DiskPayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	data, err := os.ReadFile(c.entryPath(key))
	c.mu.RUnlock()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("corrupt cache entry: %w", err)
	}
	return out.Schema == payloadSchema, nil
}

// Usage is the size of the cache on disk.
type Usage struct {
	Entries int
	Bytes   int64
}

func (u Usage) String() string {
	return fmt.Sprintf("%d entries, %.1f KiB", u.Entries, float64(u.Bytes)/1024)
}

// Usage counts the stored entries.
func (c *DiskCache) Usage() (Usage, error) {
	var u Usage
	if c == nil {
		return u, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	err := c.walkEntries(func(_ string, info fs.FileInfo) error {
		u.Entries++
		u.Bytes += info.Size()
		return nil
	})
	return u, err
}

// DropAll removes every entry and leaves the directory in place.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.walkEntries(func(path string, _ fs.FileInfo) error {
		return os.Remove(path)
	})
}

func (c *DiskCache) walkEntries(fn func(path string, info fs.FileInfo) error) error {
	if c == nil {
		return nil
	}
	return filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, entryExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(path, info)
	})
}
