package regress

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when CachePayload format changes
const diskCacheSchemaVersion uint16 = 1

// Digest identifies one discovery run of one file.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// CacheKey describes everything a discovery result depends on.
type CacheKey struct {
	Data     []byte
	Case     string
	Version  uint32
	AllBytes bool
	NoPatch  bool
	// Library identifies the loader build, e.g. the binary's version string.
	Library string
}

// Digest hashes the key.
func (k CacheKey) Digest() Digest {
	h := sha256.New()
	var hdr [8]byte
	writeField := func(b []byte) {
		binary.LittleEndian.PutUint64(hdr[:], uint64(len(b)))
		h.Write(hdr[:])
		h.Write(b)
	}
	writeField(k.Data)
	writeField([]byte(k.Case))
	writeField([]byte(k.Library))
	binary.LittleEndian.PutUint32(hdr[:4], k.Version)
	flags := byte(0)
	if k.AllBytes {
		flags |= 1
	}
	if k.NoPatch {
		flags |= 2
	}
	hdr[4] = flags
	h.Write(hdr[:5])

	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// CachePayload stores the records discovered for one file.
type CachePayload struct {
	// Schema version for safe invalidation when format changes
	Schema  uint16
	Case    string
	Version uint32
	Checks  []Check
	Created time.Time
}

// DiskCache хранит результаты поиска проверок по CacheKey на диске.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// OpenDiskCache initializes and returns a disk cache at the standard location.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDiskCacheAt(filepath.Join(base, app))
}

// OpenDiskCacheAt opens a cache rooted at dir.
func OpenDiskCacheAt(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) pathFor(key Digest) string {
	// Подкаталог "checks", чтобы кэш было легко найти и очистить.
	return filepath.Join(c.dir, "checks", key.String()+".mp")
}

// Put serializes and writes a payload to the disk cache.
func (c *DiskCache) Put(key Digest, payload *CachePayload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		// после успешного Rename временного файла уже нет
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()

	payload.Schema = diskCacheSchemaVersion
	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Get reads and deserializes a payload from the disk cache. A payload of
// another schema is reported as a miss.
func (c *DiskCache) Get(key Digest, out *CachePayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, fmt.Errorf("cache entry %s: %w", key, err)
	}
	if out.Schema != diskCacheSchemaVersion {
		return false, nil
	}
	return true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// тривиально: переименуем каталог и удалим
	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}

// Restore merges cached checks into the registry under the given case rank.
func (r *Registry) Restore(rank int, checks []Check) {
	recs := make([]*Record, len(checks))
	for i, c := range checks {
		cand := c.Candidate()
		recs[i] = &Record{
			Site:        c.Site,
			Case:        c.Case,
			CaseRank:    rank,
			Version:     c.Version,
			Patch:       cand.Patch,
			TempLimit:   cand.TempLimit,
			ResultLimit: cand.ResultLimit,
			Truncate:    c.Truncate,
			Description: c.Description,
		}
	}
	r.addAll(recs)
}
