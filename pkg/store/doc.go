/*
Package store implements the Record Store: the on-disk
keyed + secondarily-indexed collection of installed-package headers that
the Transaction Engine consults to compute the installed set.

A narrow Store interface plus a bbolt-backed implementation: one
primary bucket (pkgKey → serialized header) plus one secondary-index
bucket per lookup key the engine depends on (NAME, PROVIDENAME,
REQUIRENAME, BASENAMES, SIGMD5, SHA1HEADER, TRIGGERNAME, CACHEPKGPATH).

# Architecture

	┌──────────────────────── STORE ─────────────────────────────┐
	│                                                               │
	│  bucket "headers"        pkgKey(8B BE) → header.Serialize()  │
	│                                                               │
	│  bucket "idx:NAME"          name/idx → nested bucket of       │
	│  bucket "idx:PROVIDENAME"   pkgKey(8B BE) → struct{}          │
	│  bucket "idx:REQUIRENAME"                                     │
	│  bucket "idx:BASENAMES"                                       │
	│  bucket "idx:SIGMD5"                                          │
	│  bucket "idx:SHA1HEADER"                                      │
	│  bucket "idx:TRIGGERNAME"                                     │
	│  bucket "idx:CACHEPKGPATH"                                     │
	└───────────────────────────────────────────────────────────────┘

Every secondary index is maintained transactionally alongside the
primary write, so the installed set reachable by any index key is
exactly the installed set reachable by primary key.
*/
package store
