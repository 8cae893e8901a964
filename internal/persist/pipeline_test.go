package persist

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/digicore404/gotrack/internal/overlay"
	"github.com/digicore404/gotrack/internal/store"
)

type fakeRepo struct {
	savedDeltas [][]UserDelta
	failAlways  bool
}

func (f *fakeRepo) LoadTorrentsBatch(ctx context.Context, offset, limit int) ([]TorrentRow, error) {
	return nil, nil
}
func (f *fakeRepo) SaveTorrents(ctx context.Context, rows []TorrentRow) error { return nil }
func (f *fakeRepo) RemoveTorrents(ctx context.Context, hashes []store.InfoHash) error { return nil }
func (f *fakeRepo) LoadSet(ctx context.Context, c Collection) ([]overlay.Hash256, error) {
	return nil, nil
}
func (f *fakeRepo) SaveSet(ctx context.Context, c Collection, keys []overlay.Hash256) error {
	return nil
}
func (f *fakeRepo) RemoveSet(ctx context.Context, c Collection, keys []overlay.Hash256) error {
	return nil
}
func (f *fakeRepo) LoadKeys(ctx context.Context) ([]KeyRow, error) { return nil, nil }
func (f *fakeRepo) SaveKeys(ctx context.Context, rows []KeyRow) error { return nil }
func (f *fakeRepo) RemoveKeys(ctx context.Context, keys []overlay.Hash256) error { return nil }
func (f *fakeRepo) LoadUsers(ctx context.Context) ([]overlay.UserEntry, error) { return nil, nil }
func (f *fakeRepo) SaveUserDeltas(ctx context.Context, deltas []UserDelta) error {
	if f.failAlways {
		return context.DeadlineExceeded
	}
	cp := make([]UserDelta, len(deltas))
	copy(cp, deltas)
	f.savedDeltas = append(f.savedDeltas, cp)
	return nil
}
func (f *fakeRepo) Close() error { return nil }

func newTestPipeline(repo Repository, users *overlay.Users) *Pipeline {
	return NewPipeline(repo, store.New(true), overlay.NewSet(false), overlay.NewSet(false), overlay.NewKeys(false), users, time.Minute, zerolog.Nop())
}

func TestFlushUsersSendsOnlyPendingDeltaAndSubtracts(t *testing.T) {
	users := overlay.NewUsers(true)
	var key overlay.Hash256
	key[0] = 0x01
	users.Insert(&overlay.UserEntry{ID: uuid.New(), Key: key})

	repo := &fakeRepo{}
	p := newTestPipeline(repo, users)

	users.AccumulateDeltas(key, 100, 50, time.Now())
	p.UsersSet.MarkAdded(key)
	p.Flush(context.Background())

	if len(repo.savedDeltas) != 1 || len(repo.savedDeltas[0]) != 1 {
		t.Fatalf("expected exactly one saved delta batch with one entry, got %+v", repo.savedDeltas)
	}
	first := repo.savedDeltas[0][0]
	if first.UploadedDelta != 100 || first.DownloadedDelta != 50 {
		t.Fatalf("unexpected first flush delta: %+v", first)
	}

	// A second flush must carry only what accumulated since the first one,
	// not resend the amount already saved.
	users.AccumulateDeltas(key, 10, 0, time.Now())
	p.UsersSet.MarkAdded(key)
	p.Flush(context.Background())

	if len(repo.savedDeltas) != 2 || len(repo.savedDeltas[1]) != 1 {
		t.Fatalf("expected a second saved delta batch, got %+v", repo.savedDeltas)
	}
	second := repo.savedDeltas[1][0]
	if second.UploadedDelta != 10 || second.DownloadedDelta != 0 {
		t.Fatalf("expected second flush to only carry the 10-byte delta accumulated since the first flush, got %+v", second)
	}
}

func TestFlushUsersRestoresPendingOnSaveFailure(t *testing.T) {
	users := overlay.NewUsers(true)
	var key overlay.Hash256
	key[0] = 0x02
	users.Insert(&overlay.UserEntry{ID: uuid.New(), Key: key})

	// Every attempt fails, so the flush's own retries cannot succeed.
	repo := &fakeRepo{failAlways: true}
	p := newTestPipeline(repo, users)

	users.AccumulateDeltas(key, 200, 20, time.Now())
	p.UsersSet.MarkAdded(key)
	p.Flush(context.Background())

	if len(repo.savedDeltas) != 0 {
		t.Fatalf("expected the failed save to persist nothing, got %+v", repo.savedDeltas)
	}
	up, down, _, ok := users.DrainPending(key)
	if !ok || up != 200 || down != 20 {
		t.Fatalf("expected the failed flush's delta restored to pending, got up=%d down=%d ok=%v", up, down, ok)
	}
}

func TestFlushUsersSkipsEntriesWithNoPendingDelta(t *testing.T) {
	users := overlay.NewUsers(true)
	var key overlay.Hash256
	key[0] = 0x03
	users.Insert(&overlay.UserEntry{ID: uuid.New(), Key: key})

	repo := &fakeRepo{}
	p := newTestPipeline(repo, users)

	// Marked dirty without any accumulated delta (e.g. a requeued no-op).
	p.UsersSet.MarkAdded(key)
	p.Flush(context.Background())

	if len(repo.savedDeltas) != 0 {
		t.Fatalf("expected no save call when there is nothing pending, got %+v", repo.savedDeltas)
	}
}
