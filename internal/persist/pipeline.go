package persist

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"github.com/digicore404/gotrack/internal/overlay"
	"github.com/digicore404/gotrack/internal/store"
)

// Pipeline batches dirty-set mutations from the store and overlays to a
// Repository on a periodic interval (spec.md §4.8).
type Pipeline struct {
	Repo     Repository
	Store    *store.Store
	Whitelist *overlay.Set
	Blacklist *overlay.Set
	Keys      *overlay.Keys
	Users     *overlay.Users
	Interval  time.Duration
	Log       zerolog.Logger

	Torrents  *DirtySet[store.InfoHash]
	WhitelistSet *DirtySet[overlay.Hash256]
	BlacklistSet *DirtySet[overlay.Hash256]
	KeysSet      *DirtySet[overlay.Hash256]
	UsersSet     *DirtySet[overlay.Hash256]
}

// NewPipeline constructs a Pipeline with fresh empty dirty sets.
func NewPipeline(repo Repository, st *store.Store, wl, bl *overlay.Set, keys *overlay.Keys, users *overlay.Users, interval time.Duration, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		Repo: repo, Store: st, Whitelist: wl, Blacklist: bl, Keys: keys, Users: users,
		Interval: interval, Log: log,
		Torrents:     NewDirtySet[store.InfoHash](),
		WhitelistSet: NewDirtySet[overlay.Hash256](),
		BlacklistSet: NewDirtySet[overlay.Hash256](),
		KeysSet:      NewDirtySet[overlay.Hash256](),
		UsersSet:     NewDirtySet[overlay.Hash256](),
	}
}

// Run loops until ctx is cancelled, flushing every Interval and once more
// on cancellation (the shutdown-time final flush, spec.md §4.11).
func (p *Pipeline) Run(ctx context.Context) {
	t := time.NewTicker(p.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Flush(context.Background())
			return
		case <-t.C:
			p.Flush(ctx)
		}
	}
}

// Flush drains every dirty set once under a consistent snapshot. Failed
// batches are re-merged into the live dirty set for the next cycle
// (spec.md §4.8 step 4).
func (p *Pipeline) Flush(ctx context.Context) {
	p.flushTorrents(ctx)
	p.flushSet(ctx, CollectionWhitelist, p.WhitelistSet)
	p.flushSet(ctx, CollectionBlacklist, p.BlacklistSet)
	p.flushKeys(ctx)
	p.flushUsers(ctx)
}

func (p *Pipeline) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(op, b)
}

func (p *Pipeline) flushTorrents(ctx context.Context) {
	ops := p.Torrents.Swap()
	if len(ops) == 0 {
		return
	}
	var adds []TorrentRow
	var dels []store.InfoHash
	for ih, op := range ops {
		switch op {
		case OpAdd:
			entry, ok := p.Store.Get(ih)
			if !ok {
				continue
			}
			adds = append(adds, TorrentRow{InfoHash: ih, Completed: entry.Completed})
		case OpDelete:
			dels = append(dels, ih)
		}
	}
	failed := make(map[store.InfoHash]Op)
	if len(adds) > 0 {
		if err := p.retry(ctx, func() error { return p.Repo.SaveTorrents(ctx, adds) }); err != nil {
			p.Log.Error().Err(err).Msg("flush torrents: save failed, will retry next cycle")
			for _, r := range adds {
				failed[r.InfoHash] = OpAdd
			}
		}
	}
	if len(dels) > 0 {
		if err := p.retry(ctx, func() error { return p.Repo.RemoveTorrents(ctx, dels) }); err != nil {
			p.Log.Error().Err(err).Msg("flush torrents: remove failed, will retry next cycle")
			for _, ih := range dels {
				failed[ih] = OpDelete
			}
		}
	}
	if len(failed) > 0 {
		p.Torrents.Requeue(failed)
	}
}

func (p *Pipeline) flushSet(ctx context.Context, c Collection, dirty *DirtySet[overlay.Hash256]) {
	ops := dirty.Swap()
	if len(ops) == 0 {
		return
	}
	var adds, dels []overlay.Hash256
	for k, op := range ops {
		if op == OpAdd {
			adds = append(adds, k)
		} else {
			dels = append(dels, k)
		}
	}
	failed := make(map[overlay.Hash256]Op)
	if len(adds) > 0 {
		if err := p.retry(ctx, func() error { return p.Repo.SaveSet(ctx, c, adds) }); err != nil {
			p.Log.Error().Err(err).Str("collection", string(c)).Msg("flush: save failed, will retry")
			for _, k := range adds {
				failed[k] = OpAdd
			}
		}
	}
	if len(dels) > 0 {
		if err := p.retry(ctx, func() error { return p.Repo.RemoveSet(ctx, c, dels) }); err != nil {
			p.Log.Error().Err(err).Str("collection", string(c)).Msg("flush: remove failed, will retry")
			for _, k := range dels {
				failed[k] = OpDelete
			}
		}
	}
	if len(failed) > 0 {
		dirty.Requeue(failed)
	}
}

func (p *Pipeline) flushKeys(ctx context.Context) {
	ops := p.KeysSet.Swap()
	if len(ops) == 0 {
		return
	}
	var adds []KeyRow
	var dels []overlay.Hash256
	for k, op := range ops {
		switch op {
		case OpAdd:
			if e, ok := p.Keys.Get(k); ok {
				adds = append(adds, KeyRow{Hash: k, Expiry: e.Expiry})
			}
		case OpDelete:
			dels = append(dels, k)
		}
	}
	failed := make(map[overlay.Hash256]Op)
	if len(adds) > 0 {
		if err := p.retry(ctx, func() error { return p.Repo.SaveKeys(ctx, adds) }); err != nil {
			p.Log.Error().Err(err).Msg("flush keys: save failed, will retry")
			for _, r := range adds {
				failed[r.Hash] = OpAdd
			}
		}
	}
	if len(dels) > 0 {
		if err := p.retry(ctx, func() error { return p.Repo.RemoveKeys(ctx, dels) }); err != nil {
			p.Log.Error().Err(err).Msg("flush keys: remove failed, will retry")
			for _, k := range dels {
				failed[k] = OpDelete
			}
		}
	}
	if len(failed) > 0 {
		p.KeysSet.Requeue(failed)
	}
}

func (p *Pipeline) flushUsers(ctx context.Context) {
	ops := p.UsersSet.Swap()
	if len(ops) == 0 {
		return
	}
	var deltas []UserDelta
	for k, op := range ops {
		if op != OpAdd {
			continue
		}
		u, ok := p.Users.Lookup(k)
		if !ok {
			continue
		}
		upD, downD, compD, ok := p.Users.DrainPending(k)
		if !ok || (upD == 0 && downD == 0 && compD == 0) {
			continue
		}
		deltas = append(deltas, UserDelta{User: *u, UploadedDelta: upD, DownloadedDelta: downD, CompletedDelta: compD})
	}
	if len(deltas) == 0 {
		return
	}
	failed := make(map[overlay.Hash256]Op)
	if err := p.retry(ctx, func() error { return p.Repo.SaveUserDeltas(ctx, deltas) }); err != nil {
		p.Log.Error().Err(err).Msg("flush user deltas: save failed, will retry")
		for _, d := range deltas {
			failed[d.User.Key] = OpAdd
			p.Users.RestorePending(d.User.Key, d.UploadedDelta, d.DownloadedDelta, d.CompletedDelta)
		}
	}
	if len(failed) > 0 {
		p.UsersSet.Requeue(failed)
	}
}

// LoadAtBoot streams torrents in paginated batches and inserts empty
// entries with their persisted completed counters, then fully materializes
// the overlays in memory (spec.md §4.8 "Boot-time load").
func LoadAtBoot(ctx context.Context, repo Repository, st *store.Store, wl, bl *overlay.Set, keys *overlay.Keys, users *overlay.Users, batchSize int) error {
	offset := 0
	for {
		rows, err := repo.LoadTorrentsBatch(ctx, offset, batchSize)
		if err != nil {
			return err
		}
		for _, r := range rows {
			st.LoadTorrent(r.InfoHash, r.Completed)
		}
		if len(rows) < batchSize {
			break
		}
		offset += batchSize
	}

	if wlKeys, err := repo.LoadSet(ctx, CollectionWhitelist); err == nil {
		for _, k := range wlKeys {
			wl.Insert(k)
		}
	} else {
		return err
	}
	if blKeys, err := repo.LoadSet(ctx, CollectionBlacklist); err == nil {
		for _, k := range blKeys {
			bl.Insert(k)
		}
	} else {
		return err
	}
	if keyRows, err := repo.LoadKeys(ctx); err == nil {
		for _, r := range keyRows {
			keys.Insert(r.Hash, r.Expiry)
		}
	} else {
		return err
	}
	if userRows, err := repo.LoadUsers(ctx); err == nil {
		for i := range userRows {
			u := userRows[i]
			users.Insert(&u)
		}
	} else {
		return err
	}
	return nil
}
