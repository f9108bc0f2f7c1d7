// Package diskcache persists decoded images between runs so repeated
// processing of the same source file skips decoding.
//
// Entries live in <user cache dir>/shade/raw_cache/<key>.cache. A file
// holds a one byte format version, the width and height as little-endian
// uint32 and the rgba32float pixels. Entries written by another version
// are treated as misses and removed.
package diskcache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"

	"github.com/gogpu/shade"
	"github.com/gogpu/shade/executor"
)

// Version is the on-disk format version.
const Version byte = 1

// DefaultMaxAge is the age after which Prune removes entries by default.
const DefaultMaxAge = 30 * 24 * time.Hour

const (
	subdir    = "raw_cache"
	ext       = ".cache"
	headerLen = 1 + 4 + 4
)

// ErrCorrupt is returned when an entry cannot be parsed.
var ErrCorrupt = errors.New("diskcache: corrupt entry")

// Cache is a directory of decoded images keyed by content hash.
type Cache struct {
	fs  afero.Fs
	dir string
}

// Option configures a Cache.
type Option func(*Cache)

// WithFS stores entries on fs instead of the OS file system.
func WithFS(fs afero.Fs) Option {
	return func(c *Cache) { c.fs = fs }
}

// DefaultDir returns <user cache dir>/shade/raw_cache, falling back to
// ~/.cache and then the temp directory.
func DefaultDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "shade", subdir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "shade", subdir)
	}
	return filepath.Join(os.TempDir(), "shade", subdir)
}

// Open creates dir if needed. An empty dir selects DefaultDir.
func Open(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	c := &Cache{fs: afero.NewOsFs(), dir: dir}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("diskcache: create %s: %w", dir, err)
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Key derives the entry key for a source file and the decode parameters
// that affect its pixels.
func Key(data []byte, params string) string {
	h, _ := blake2b.New256(nil)
	h.Write(data)
	h.Write([]byte(params))
	h.Write([]byte{Version})
	return hex.EncodeToString(h.Sum(nil))
}

// Path returns the file backing key.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, key+ext)
}

// Load returns the image stored under key. Unreadable and stale entries
// are removed and reported as misses.
func (c *Cache) Load(key string) (executor.Image, bool) {
	path := c.Path(key)
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			shade.Logger().Warn("diskcache: read failed", "path", path, "err", err)
		}
		return executor.Image{}, false
	}
	img, err := unmarshal(data)
	if err != nil {
		shade.Logger().Info("diskcache: dropping entry", "key", key, "err", err)
		_ = c.fs.Remove(path)
		return executor.Image{}, false
	}
	shade.Logger().Debug("diskcache: hit", "key", key, "width", img.Width, "height", img.Height)
	return img, true
}

// Save stores img under key. The entry is written to a temporary file and
// renamed so readers never observe a partial entry.
func (c *Cache) Save(key string, img executor.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	tmp, err := afero.TempFile(c.fs, c.dir, key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("diskcache: %w", err)
	}
	name := tmp.Name()
	_, werr := tmp.Write(marshal(img))
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = c.fs.Remove(name)
		return fmt.Errorf("diskcache: write %s: %w", name, err)
	}
	if err := c.fs.Rename(name, c.Path(key)); err != nil {
		_ = c.fs.Remove(name)
		return fmt.Errorf("diskcache: %w", err)
	}
	shade.Logger().Debug("diskcache: saved", "key", key, "bytes", headerLen+len(img.Pix))
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	if err := c.fs.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("diskcache: clear: %w", err)
	}
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("diskcache: recreate %s: %w", c.dir, err)
	}
	shade.Logger().Info("diskcache: cleared", "dir", c.dir)
	return nil
}

// Size returns the total size of the entry files in bytes.
func (c *Cache) Size() (int64, error) {
	entries, err := c.entries()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, fi := range entries {
		total += fi.Size()
	}
	return total, nil
}

// Len returns the number of entries.
func (c *Cache) Len() (int, error) {
	entries, err := c.entries()
	return len(entries), err
}

// Prune removes entries last modified more than maxAge ago and returns
// how many were removed.
func (c *Cache) Prune(maxAge time.Duration) (int, error) {
	entries, err := c.entries()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, fi := range entries {
		if fi.ModTime().After(cutoff) {
			continue
		}
		if err := c.fs.Remove(filepath.Join(c.dir, fi.Name())); err != nil {
			shade.Logger().Warn("diskcache: prune failed", "file", fi.Name(), "err", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		shade.Logger().Info("diskcache: pruned old entries", "count", removed)
	}
	return removed, nil
}

func (c *Cache) entries() ([]os.FileInfo, error) {
	infos, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("diskcache: list %s: %w", c.dir, err)
	}
	out := infos[:0]
	for _, fi := range infos {
		if !fi.IsDir() && strings.HasSuffix(fi.Name(), ext) {
			out = append(out, fi)
		}
	}
	return out, nil
}

func marshal(img executor.Image) []byte {
	buf := make([]byte, headerLen, headerLen+len(img.Pix))
	buf[0] = Version
	binary.LittleEndian.PutUint32(buf[1:], img.Width)
	binary.LittleEndian.PutUint32(buf[5:], img.Height)
	return append(buf, img.Pix...)
}

func unmarshal(data []byte) (executor.Image, error) {
	if len(data) < headerLen {
		return executor.Image{}, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	if data[0] != Version {
		return executor.Image{}, fmt.Errorf("%w: version %d", ErrCorrupt, data[0])
	}
	img := executor.Image{
		Width:  binary.LittleEndian.Uint32(data[1:]),
		Height: binary.LittleEndian.Uint32(data[5:]),
	}
	want := uint64(img.Width) * uint64(img.Height) * executor.BytesPerPixel
	if uint64(len(data)-headerLen) != want {
		return executor.Image{}, fmt.Errorf("%w: %dx%d with %d pixel bytes",
			ErrCorrupt, img.Width, img.Height, len(data)-headerLen)
	}
	img.Pix = data[headerLen:]
	if err := img.Validate(); err != nil {
		return executor.Image{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return img, nil
}
