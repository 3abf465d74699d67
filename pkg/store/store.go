package store

import (
	"github.com/pkgtx/corepm/pkg/header"
)

// Store is the Record Store interface: a keyed collection
// of package headers with secondary indices for the lookups the solver
// and transaction engine need.
type Store interface {
	// Put stores h under a new primary key (an autoincrementing package
	// key, the engine's "pkgKey") and maintains every secondary index.
	Put(h *header.Header) (pkgKey uint64, err error)

	// Get retrieves the header stored under pkgKey.
	Get(pkgKey uint64) (*header.Header, error)

	// Del removes pkgKey and unwinds every secondary index entry it
	// contributed.
	Del(pkgKey uint64) error

	// List returns every primary key currently stored, in ascending
	// order.
	List() ([]uint64, error)

	// FindByName returns the primary keys of headers whose NAME tag
	// equals name.
	FindByName(name string) ([]uint64, error)

	// FindByProvide returns the primary keys of headers whose
	// PROVIDENAME array contains name.
	FindByProvide(name string) ([]uint64, error)

	// FindByRequire returns the primary keys of headers whose
	// REQUIRENAME array contains name.
	FindByRequire(name string) ([]uint64, error)

	// FindByBasename returns the primary keys of headers whose
	// BASENAMES array contains basename.
	FindByBasename(basename string) ([]uint64, error)

	// FindBySigMD5 returns the primary keys of headers whose SIGMD5 tag
	// equals the given hex digest.
	FindBySigMD5(md5 string) ([]uint64, error)

	// FindBySHA1Header returns the primary keys of headers whose
	// SHA1HEADER tag equals the given hex digest.
	FindBySHA1Header(sha1 string) ([]uint64, error)

	// FindByTrigger returns the primary keys of headers whose
	// TRIGGERNAME array contains name.
	FindByTrigger(name string) ([]uint64, error)

	// FindByCachePkgPath returns the primary keys of headers whose
	// CACHEPKGPATH arbitrary tag equals path.
	FindByCachePkgPath(path string) ([]uint64, error)

	// Close releases the underlying database handle.
	Close() error
}
