/*
Package codec implements the three archive dialects a package payload can
carry: cpio (newc), ustar, and ar (SVR4). Each dialect
satisfies the same Dialect interface — HeaderRead, HeaderWrite,
TrailerWrite, Blksize — so pkg/fsm can stream any of them without caring
which one is in play.

# Architecture

	┌────────────────────── CODEC ───────────────────────────────┐
	│                                                               │
	│   Dialect interface                                          │
	│     HeaderRead(r)  → Entry, or ErrTrailer at clean EOF        │
	│     HeaderWrite(w, Entry)                                    │
	│     TrailerWrite(w)                                          │
	│     Blksize() int     -- 4 (cpio), 512 (tar), 2 (ar)          │
	│                                                               │
	│   cpioDialect   -- 070701 newc, NUL-terminated path           │
	│   tarDialect    -- ustar 512-byte blocks, GNU long-name ext   │
	│   arDialect     -- "!<arch>\n" + 60-byte members, "//" table  │
	└───────────────────────────────────────────────────────────────┘

Failure modes: ErrBadMagic, ErrBadHeader, ErrHdrSize,
and the read/write wrapping errors layered by the caller. ErrTrailer is a
sentinel, not a user-visible failure — it signals a clean end of archive
and terminates the FSM's install/erase loop normally.
*/
package codec
