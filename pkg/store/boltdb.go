package store

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/pkgtx/corepm/pkg/header"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketHeaders = []byte("headers")

	bucketIdxName          = []byte("idx:NAME")
	bucketIdxProvideName   = []byte("idx:PROVIDENAME")
	bucketIdxRequireName   = []byte("idx:REQUIRENAME")
	bucketIdxBasenames     = []byte("idx:BASENAMES")
	bucketIdxSigMD5        = []byte("idx:SIGMD5")
	bucketIdxSHA1Header    = []byte("idx:SHA1HEADER")
	bucketIdxTriggerName   = []byte("idx:TRIGGERNAME")
	bucketIdxCachePkgPath  = []byte("idx:CACHEPKGPATH")
)

var tagCachePkgPath = header.RegisterName("cachepkgpath")

// BoltStore implements Store using bbolt, one bucket per concern.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the record store database
// under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "corepm.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketHeaders,
			bucketIdxName,
			bucketIdxProvideName,
			bucketIdxRequireName,
			bucketIdxBasenames,
			bucketIdxSigMD5,
			bucketIdxSHA1Header,
			bucketIdxTriggerName,
			bucketIdxCachePkgPath,
		}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("store: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func keyBytes(pkgKey uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], pkgKey)
	return b[:]
}

func stringTag(h *header.Header, tag header.Tag) (string, bool) {
	_, v, ok := h.Get(tag)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func stringArrayTag(h *header.Header, tag header.Tag) []string {
	_, v, ok := h.Get(tag)
	if !ok {
		return nil
	}
	arr, _ := v.([]string)
	return arr
}

func (s *BoltStore) Put(h *header.Header) (uint64, error) {
	blob, err := h.Serialize()
	if err != nil {
		return 0, fmt.Errorf("store: serialize header: %w", err)
	}

	var pkgKey uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		hb := tx.Bucket(bucketHeaders)
		seq, err := hb.NextSequence()
		if err != nil {
			return fmt.Errorf("store: allocate pkgKey: %w", err)
		}
		pkgKey = seq
		if err := hb.Put(keyBytes(pkgKey), blob); err != nil {
			return err
		}
		return s.indexPut(tx, pkgKey, h)
	})
	if err != nil {
		return 0, err
	}
	return pkgKey, nil
}

func (s *BoltStore) indexPut(tx *bolt.Tx, pkgKey uint64, h *header.Header) error {
	put := func(bucketName []byte, value string) error {
		if value == "" {
			return nil
		}
		b := tx.Bucket(bucketName)
		sub, err := b.CreateBucketIfNotExists([]byte(value))
		if err != nil {
			return err
		}
		return sub.Put(keyBytes(pkgKey), []byte{})
	}

	if name, ok := stringTag(h, header.TagName); ok {
		if err := put(bucketIdxName, name); err != nil {
			return err
		}
	}
	for _, name := range stringArrayTag(h, header.TagProvideName) {
		if err := put(bucketIdxProvideName, name); err != nil {
			return err
		}
	}
	for _, name := range stringArrayTag(h, header.TagRequireName) {
		if err := put(bucketIdxRequireName, name); err != nil {
			return err
		}
	}
	for _, name := range stringArrayTag(h, header.TagBasenames) {
		if err := put(bucketIdxBasenames, name); err != nil {
			return err
		}
	}
	if md5, ok := stringTag(h, header.TagSigMD5); ok {
		if err := put(bucketIdxSigMD5, md5); err != nil {
			return err
		}
	}
	if sha1, ok := stringTag(h, header.TagSHA1Header); ok {
		if err := put(bucketIdxSHA1Header, sha1); err != nil {
			return err
		}
	}
	for _, name := range stringArrayTag(h, header.TagTriggerName) {
		if err := put(bucketIdxTriggerName, name); err != nil {
			return err
		}
	}
	if path, ok := stringTag(h, tagCachePkgPath); ok {
		if err := put(bucketIdxCachePkgPath, path); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) indexDel(tx *bolt.Tx, pkgKey uint64, h *header.Header) error {
	del := func(bucketName []byte, value string) error {
		if value == "" {
			return nil
		}
		b := tx.Bucket(bucketName)
		sub := b.Bucket([]byte(value))
		if sub == nil {
			return nil
		}
		if err := sub.Delete(keyBytes(pkgKey)); err != nil {
			return err
		}
		if sub.Stats().KeyN == 0 {
			return b.DeleteBucket([]byte(value))
		}
		return nil
	}

	if name, ok := stringTag(h, header.TagName); ok {
		if err := del(bucketIdxName, name); err != nil {
			return err
		}
	}
	for _, name := range stringArrayTag(h, header.TagProvideName) {
		if err := del(bucketIdxProvideName, name); err != nil {
			return err
		}
	}
	for _, name := range stringArrayTag(h, header.TagRequireName) {
		if err := del(bucketIdxRequireName, name); err != nil {
			return err
		}
	}
	for _, name := range stringArrayTag(h, header.TagBasenames) {
		if err := del(bucketIdxBasenames, name); err != nil {
			return err
		}
	}
	if md5, ok := stringTag(h, header.TagSigMD5); ok {
		if err := del(bucketIdxSigMD5, md5); err != nil {
			return err
		}
	}
	if sha1, ok := stringTag(h, header.TagSHA1Header); ok {
		if err := del(bucketIdxSHA1Header, sha1); err != nil {
			return err
		}
	}
	for _, name := range stringArrayTag(h, header.TagTriggerName) {
		if err := del(bucketIdxTriggerName, name); err != nil {
			return err
		}
	}
	if path, ok := stringTag(h, tagCachePkgPath); ok {
		if err := del(bucketIdxCachePkgPath, path); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) Get(pkgKey uint64) (*header.Header, error) {
	var h *header.Header
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHeaders)
		blob := b.Get(keyBytes(pkgKey))
		if blob == nil {
			return fmt.Errorf("store: pkgKey %d not found", pkgKey)
		}
		loaded, err := header.Load(blob)
		if err != nil {
			return fmt.Errorf("store: load pkgKey %d: %w", pkgKey, err)
		}
		h = loaded
		return nil
	})
	return h, err
}

func (s *BoltStore) Del(pkgKey uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		hb := tx.Bucket(bucketHeaders)
		blob := hb.Get(keyBytes(pkgKey))
		if blob == nil {
			return fmt.Errorf("store: pkgKey %d not found", pkgKey)
		}
		h, err := header.Load(blob)
		if err != nil {
			return fmt.Errorf("store: load pkgKey %d: %w", pkgKey, err)
		}
		if err := s.indexDel(tx, pkgKey, h); err != nil {
			return err
		}
		return hb.Delete(keyBytes(pkgKey))
	})
}

func (s *BoltStore) List() ([]uint64, error) {
	var out []uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHeaders)
		return b.ForEach(func(k, v []byte) error {
			out = append(out, binary.BigEndian.Uint64(k))
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) findIndex(bucketName []byte, value string) ([]uint64, error) {
	var out []uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		sub := b.Bucket([]byte(value))
		if sub == nil {
			return nil
		}
		return sub.ForEach(func(k, v []byte) error {
			out = append(out, binary.BigEndian.Uint64(k))
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) FindByName(name string) ([]uint64, error) {
	return s.findIndex(bucketIdxName, name)
}

func (s *BoltStore) FindByProvide(name string) ([]uint64, error) {
	return s.findIndex(bucketIdxProvideName, name)
}

func (s *BoltStore) FindByRequire(name string) ([]uint64, error) {
	return s.findIndex(bucketIdxRequireName, name)
}

func (s *BoltStore) FindByBasename(basename string) ([]uint64, error) {
	return s.findIndex(bucketIdxBasenames, basename)
}

func (s *BoltStore) FindBySigMD5(md5 string) ([]uint64, error) {
	return s.findIndex(bucketIdxSigMD5, md5)
}

func (s *BoltStore) FindBySHA1Header(sha1 string) ([]uint64, error) {
	return s.findIndex(bucketIdxSHA1Header, sha1)
}

func (s *BoltStore) FindByTrigger(name string) ([]uint64, error) {
	return s.findIndex(bucketIdxTriggerName, name)
}

func (s *BoltStore) FindByCachePkgPath(path string) ([]uint64, error) {
	return s.findIndex(bucketIdxCachePkgPath, path)
}
