package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kinodub/dualsub/internal/cache"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// PutSubtitleBatch writes an entire translated chunk in one transaction.
func (s *SQLiteStore) PutSubtitleBatch(ctx context.Context, entries []cache.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, entry := range entries {
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO subtitle_translations (
				work_identity, source_lang, target_lang, text_key, translated_text
			) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(work_identity, source_lang, target_lang, text_key) DO UPDATE SET
				translated_text=excluded.translated_text`,
			entry.WorkIdentity,
			entry.SourceLang,
			entry.TargetLang,
			entry.TextKey,
			entry.TranslatedText,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadWork bulk-reads every subtitle entry for one work identity and
// language pair, so resuming a title costs one query.
func (s *SQLiteStore) LoadWork(ctx context.Context, workIdentity, sourceLang, targetLang string) ([]cache.Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT work_identity, source_lang, target_lang, text_key, translated_text
		 FROM subtitle_translations
		 WHERE work_identity = ? AND source_lang = ? AND target_lang = ?`,
		workIdentity,
		sourceLang,
		targetLang,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]cache.Entry, 0)
	for rows.Next() {
		var item cache.Entry
		if err := rows.Scan(
			&item.WorkIdentity,
			&item.SourceLang,
			&item.TargetLang,
			&item.TextKey,
			&item.TranslatedText,
		); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// TouchWork refreshes a work's last-accessed day. Called once per scope
// entry, not per subtitle.
func (s *SQLiteStore) TouchWork(ctx context.Context, workIdentity string, day int) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO work_meta (work_identity, last_accessed_day)
		 VALUES (?, ?)
		 ON CONFLICT(work_identity) DO UPDATE SET
			last_accessed_day=excluded.last_accessed_day`,
		workIdentity,
		day,
	)
	return err
}

// DeleteWorksBefore purges every work whose last-accessed day is strictly
// older than the cutoff, removing both the metadata row and all of the
// work's subtitle entries in one pass.
func (s *SQLiteStore) DeleteWorksBefore(ctx context.Context, cutoffDay int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(
		ctx,
		`DELETE FROM subtitle_translations WHERE work_identity IN (
			SELECT work_identity FROM work_meta WHERE last_accessed_day < ?
		)`,
		cutoffDay,
	)
	if err != nil {
		return 0, err
	}
	removed, _ := res.RowsAffected()

	if _, err = tx.ExecContext(ctx, `DELETE FROM work_meta WHERE last_accessed_day < ?`, cutoffDay); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *SQLiteStore) PutWord(ctx context.Context, entry cache.WordEntry) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO word_translations (
			word_key, source_lang, target_lang, translated_text, source, last_accessed_day
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(word_key, source_lang, target_lang) DO UPDATE SET
			translated_text=excluded.translated_text,
			source=excluded.source,
			last_accessed_day=excluded.last_accessed_day`,
		entry.WordKey,
		entry.SourceLang,
		entry.TargetLang,
		entry.TranslatedText,
		entry.Source,
		entry.LastAccessedDay,
	)
	return err
}

func (s *SQLiteStore) GetWord(ctx context.Context, wordKey, sourceLang, targetLang string) (cache.WordEntry, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT word_key, source_lang, target_lang, translated_text, source, last_accessed_day
		 FROM word_translations
		 WHERE word_key = ? AND source_lang = ? AND target_lang = ?`,
		wordKey,
		sourceLang,
		targetLang,
	)

	var ret cache.WordEntry
	if err := row.Scan(
		&ret.WordKey,
		&ret.SourceLang,
		&ret.TargetLang,
		&ret.TranslatedText,
		&ret.Source,
		&ret.LastAccessedDay,
	); err != nil {
		if err == sql.ErrNoRows {
			return cache.WordEntry{}, false, nil
		}
		return cache.WordEntry{}, false, err
	}
	return ret, true, nil
}

// DeleteWordsBefore purges word entries whose last-accessed day is strictly
// older than the cutoff. Uses the last-accessed index for the scan.
func (s *SQLiteStore) DeleteWordsBefore(ctx context.Context, cutoffDay int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM word_translations WHERE last_accessed_day < ?`, cutoffDay)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteWord drops one word entry, used when a cached value fails the
// validity guard.
func (s *SQLiteStore) DeleteWord(ctx context.Context, wordKey, sourceLang, targetLang string) error {
	_, err := s.db.ExecContext(
		ctx,
		`DELETE FROM word_translations WHERE word_key = ? AND source_lang = ? AND target_lang = ?`,
		wordKey,
		sourceLang,
		targetLang,
	)
	return err
}
