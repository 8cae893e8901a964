package persist

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/digicore404/gotrack/internal/overlay"
	"github.com/digicore404/gotrack/internal/store"
)

// mysqlDriver registers the mysql dialect, reusing the teacher's DSN shape
// and connection-pool sizing from db.go's InitDB.
type mysqlDriver struct{}

func (mysqlDriver) Open(dsn string) (Repository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(40)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &mysqlRepository{db: db}, nil
}

func init() {
	Register("mysql", mysqlDriver{})
}

type mysqlRepository struct {
	db *sql.DB
}

func (r *mysqlRepository) Close() error { return r.db.Close() }

func classify(err error) error {
	if err == nil {
		return nil
	}
	// Every failure is classed as transient; no error is classed as
	// ErrPermanent here, so constraint or syntax failures are retried too.
	return &Error{Class: ErrTransient, Err: err}
}

func (r *mysqlRepository) LoadTorrentsBatch(ctx context.Context, offset, limit int) ([]TorrentRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT info_hash, times_completed FROM torrents ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []TorrentRow
	for rows.Next() {
		var ihHex string
		var completed uint64
		if err := rows.Scan(&ihHex, &completed); err != nil {
			continue
		}
		b, err := hex.DecodeString(ihHex)
		if err != nil || len(b) != 20 {
			continue
		}
		var ih store.InfoHash
		copy(ih[:], b)
		out = append(out, TorrentRow{InfoHash: ih, Completed: completed})
	}
	return out, nil
}

func (r *mysqlRepository) SaveTorrents(ctx context.Context, torrents []TorrentRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	const q = `INSERT INTO torrents (info_hash, times_completed) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE times_completed = VALUES(times_completed)`
	for _, t := range torrents {
		if _, err := tx.ExecContext(ctx, q, hex.EncodeToString(t.InfoHash[:]), t.Completed); err != nil {
			tx.Rollback()
			return classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (r *mysqlRepository) RemoveTorrents(ctx context.Context, hashes []store.InfoHash) error {
	for _, ih := range hashes {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM torrents WHERE info_hash = ?`, hex.EncodeToString(ih[:])); err != nil {
			return classify(err)
		}
	}
	return nil
}

func tableFor(c Collection) (string, error) {
	switch c {
	case CollectionWhitelist:
		return "whitelist", nil
	case CollectionBlacklist:
		return "blacklist", nil
	default:
		return "", fmt.Errorf("persist: unknown collection %q", c)
	}
}

func (r *mysqlRepository) LoadSet(ctx context.Context, c Collection) ([]overlay.Hash256, error) {
	table, err := tableFor(c)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT info_hash FROM %s`, table))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []overlay.Hash256
	for rows.Next() {
		var hexStr string
		if err := rows.Scan(&hexStr); err != nil {
			continue
		}
		b, err := hex.DecodeString(hexStr)
		if err != nil || len(b) != 20 {
			continue
		}
		var h overlay.Hash256
		copy(h[:], b)
		out = append(out, h)
	}
	return out, nil
}

func (r *mysqlRepository) SaveSet(ctx context.Context, c Collection, keys []overlay.Hash256) error {
	table, err := tableFor(c)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT IGNORE INTO %s (info_hash) VALUES (?)`, table)
	for _, k := range keys {
		if _, err := r.db.ExecContext(ctx, q, hex.EncodeToString(k[:])); err != nil {
			return classify(err)
		}
	}
	return nil
}

func (r *mysqlRepository) RemoveSet(ctx context.Context, c Collection, keys []overlay.Hash256) error {
	table, err := tableFor(c)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE info_hash = ?`, table)
	for _, k := range keys {
		if _, err := r.db.ExecContext(ctx, q, hex.EncodeToString(k[:])); err != nil {
			return classify(err)
		}
	}
	return nil
}

func (r *mysqlRepository) LoadKeys(ctx context.Context) ([]KeyRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key_hash, expiry FROM tracker_keys`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []KeyRow
	for rows.Next() {
		var hexStr string
		var expiry int64
		if err := rows.Scan(&hexStr, &expiry); err != nil {
			continue
		}
		b, err := hex.DecodeString(hexStr)
		if err != nil || len(b) != 20 {
			continue
		}
		var h overlay.Hash256
		copy(h[:], b)
		out = append(out, KeyRow{Hash: h, Expiry: expiry})
	}
	return out, nil
}

func (r *mysqlRepository) SaveKeys(ctx context.Context, rows []KeyRow) error {
	const q = `INSERT INTO tracker_keys (key_hash, expiry) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE expiry = VALUES(expiry)`
	for _, row := range rows {
		if _, err := r.db.ExecContext(ctx, q, hex.EncodeToString(row.Hash[:]), row.Expiry); err != nil {
			return classify(err)
		}
	}
	return nil
}

func (r *mysqlRepository) RemoveKeys(ctx context.Context, keys []overlay.Hash256) error {
	for _, k := range keys {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM tracker_keys WHERE key_hash = ?`, hex.EncodeToString(k[:])); err != nil {
			return classify(err)
		}
	}
	return nil
}

func (r *mysqlRepository) LoadUsers(ctx context.Context) ([]overlay.UserEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, passkey, uploaded, downloaded, times_completed, enabled FROM users`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []overlay.UserEntry
	for rows.Next() {
		var idStr, passkey string
		var uploaded, downloaded, completed uint64
		var enabledStr string
		if err := rows.Scan(&idStr, &passkey, &uploaded, &downloaded, &completed, &enabledStr); err != nil {
			continue
		}
		var key overlay.Hash256
		copy(key[:], passkey)
		out = append(out, overlay.UserEntry{
			Key: key, Uploaded: uploaded, Downloaded: downloaded, Completed: completed,
			Active: enabledStr == "yes",
		})
	}
	return out, nil
}

func (r *mysqlRepository) SaveUserDeltas(ctx context.Context, deltas []UserDelta) error {
	const q = `UPDATE users SET uploaded = uploaded + ?, downloaded = downloaded + ?, times_completed = times_completed + ? WHERE passkey = ?`
	for _, d := range deltas {
		if _, err := r.db.ExecContext(ctx, q, d.UploadedDelta, d.DownloadedDelta, d.CompletedDelta, string(d.User.Key[:])); err != nil {
			return classify(err)
		}
	}
	return nil
}
