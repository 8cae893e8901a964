package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/digicore404/gotrack/internal/overlay"
	"github.com/digicore404/gotrack/internal/store"
)

// Collection names the four sharded overlay sets persisted alongside
// torrents, per spec.md §4.8.
type Collection string

const (
	CollectionWhitelist Collection = "whitelist"
	CollectionBlacklist Collection = "blacklist"
	CollectionKeys      Collection = "keys"
	CollectionUsers     Collection = "users"
)

// TorrentRow is one persisted torrent's completed counter, keyed by
// infohash (spec.md §3: persistence may reset completed only under
// explicit admin action; peer state is never persisted).
type TorrentRow struct {
	InfoHash  store.InfoHash
	Completed uint64
}

// KeyRow is one persisted key-overlay entry.
type KeyRow struct {
	Hash   overlay.Hash256
	Expiry int64
}

// UserDelta is the accumulated uploaded/downloaded/completed change for one
// user row since the last flush (spec.md §4.8, §9).
type UserDelta struct {
	User       overlay.UserEntry
	UploadedDelta   uint64
	DownloadedDelta uint64
	CompletedDelta  uint64
}

// Repository is the abstract backing-store contract spec.md §4.8 names.
// Concrete SQL dialects implement this without the pipeline depending on
// any one of them directly; this package registers only "mysql" (mysql.go).
type Repository interface {
	LoadTorrentsBatch(ctx context.Context, offset, limit int) ([]TorrentRow, error)
	SaveTorrents(ctx context.Context, rows []TorrentRow) error
	// RemoveTorrents deletes rows by infohash, supplementing spec.md's
	// abstract op list to cover admin-initiated torrent deletion.
	RemoveTorrents(ctx context.Context, hashes []store.InfoHash) error

	LoadSet(ctx context.Context, c Collection) ([]overlay.Hash256, error)
	SaveSet(ctx context.Context, c Collection, keys []overlay.Hash256) error
	RemoveSet(ctx context.Context, c Collection, keys []overlay.Hash256) error

	LoadKeys(ctx context.Context) ([]KeyRow, error)
	SaveKeys(ctx context.Context, rows []KeyRow) error
	RemoveKeys(ctx context.Context, keys []overlay.Hash256) error

	LoadUsers(ctx context.Context) ([]overlay.UserEntry, error)
	SaveUserDeltas(ctx context.Context, deltas []UserDelta) error

	Close() error
}

// Driver constructs a Repository from a DSN, mirroring the Driver/Open
// registry shape found in the pack's chihaya backend package (see
// SPEC_FULL.md §4.8).
type Driver interface {
	Open(dsn string) (Repository, error)
}

var drivers = make(map[string]Driver)

// Register makes a backing-store driver available under name. Panics on a
// duplicate registration or a nil driver, matching database/sql's own
// driver registry convention.
func Register(name string, driver Driver) {
	if driver == nil {
		panic("persist: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("persist: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Open opens a Repository using the named, already-registered driver.
func Open(name, dsn string) (Repository, error) {
	driver, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("persist: unknown driver %q (forgotten import?)", name)
	}
	return driver.Open(dsn)
}

// ErrClass distinguishes transient (retry) from permanent (escalate)
// persistence failures, per spec.md §7.
type ErrClass uint8

const (
	ErrTransient ErrClass = iota
	ErrPermanent
)

// Error wraps a backing-store failure with its class.
type Error struct {
	Class ErrClass
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// DefaultFlushInterval matches spec.md §4.8's stated default.
const DefaultFlushInterval = 60 * time.Second
