package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const pageCacheSchema = `
CREATE TABLE IF NOT EXISTS pages (
	name       TEXT PRIMARY KEY,
	pagetext   TEXT NOT NULL,
	revision   INTEGER NOT NULL,
	fetched_at INTEGER NOT NULL
);`

// PageCache stores wiki page text keyed by title and revision
type PageCache struct {
	db *sql.DB
}

// OpenPageCache opens or creates the cache database at path
func OpenPageCache(path string) (*PageCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening page cache %s: %w", path, err)
	}
	// a single connection keeps writes serialised
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(pageCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating page cache schema: %w", err)
	}
	return &PageCache{db: db}, nil
}

// Get returns the cached text and revision of title
func (c *PageCache) Get(ctx context.Context, title string) (text string, revision int64, ok bool, err error) {
	row := c.db.QueryRowContext(ctx, `SELECT pagetext, revision FROM pages WHERE name = ?`, title)
	switch err := row.Scan(&text, &revision); {
	case errors.Is(err, sql.ErrNoRows):
		return "", 0, false, nil
	case err != nil:
		return "", 0, false, fmt.Errorf("reading cached page %s: %w", title, err)
	}
	return text, revision, true, nil
}

// Put stores text as revision of title
func (c *PageCache) Put(ctx context.Context, title, text string, revision int64) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO pages (name, pagetext, revision, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET pagetext = excluded.pagetext, revision = excluded.revision, fetched_at = excluded.fetched_at`,
		title, text, revision, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("caching page %s: %w", title, err)
	}
	return nil
}

// Delete drops title from the cache
func (c *PageCache) Delete(ctx context.Context, title string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM pages WHERE name = ?`, title); err != nil {
		return fmt.Errorf("evicting page %s: %w", title, err)
	}
	return nil
}

// Close closes the database
func (c *PageCache) Close() error {
	return c.db.Close()
}
