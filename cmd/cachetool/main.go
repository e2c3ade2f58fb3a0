package main

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: cachetool <stats|list|evict|purge> <cache-db> [title]")
	}

	command := os.Args[1]
	dbPath := os.Args[2]

	if _, err := os.Stat(dbPath); err != nil {
		log.Fatalf("Cache database %s: %v", dbPath, err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("Opening %s: %v", dbPath, err)
	}
	defer db.Close()

	switch command {
	case "stats":
		err = printStats(db, os.Stdout)
	case "list":
		err = listPages(db, os.Stdout)
	case "evict":
		if len(os.Args) < 4 {
			log.Fatal("Usage: cachetool evict <cache-db> <title>")
		}
		var n int64
		n, err = evictPage(db, os.Args[3])
		if err == nil {
			fmt.Printf("Evicted %d page(s)\n", n)
		}
	case "purge":
		if !confirm(bufio.NewReader(os.Stdin), fmt.Sprintf("Remove every cached page from %s?", dbPath)) {
			fmt.Println("Nothing removed")
			return
		}
		var n int64
		n, err = purgePages(db)
		if err == nil {
			fmt.Printf("Removed %d cached pages\n", n)
		}
	default:
		log.Fatalf("Unknown command %q", command)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func printStats(db *sql.DB, w io.Writer) error {
	var (
		pages  int
		bytes  sql.NullInt64
		newest sql.NullInt64
	)
	row := db.QueryRow(`SELECT COUNT(*), SUM(LENGTH(pagetext)), MAX(fetched_at) FROM pages`)
	if err := row.Scan(&pages, &bytes, &newest); err != nil {
		return fmt.Errorf("reading cache stats: %w", err)
	}
	fmt.Fprintf(w, "pages: %d\n", pages)
	fmt.Fprintf(w, "text bytes: %d\n", bytes.Int64)
	if newest.Valid {
		fmt.Fprintf(w, "last fetch: %s\n", time.Unix(newest.Int64, 0).UTC().Format(time.RFC3339))
	}
	return nil
}

func listPages(db *sql.DB, w io.Writer) error {
	rows, err := db.Query(`SELECT name, revision FROM pages ORDER BY name`)
	if err != nil {
		return fmt.Errorf("listing cached pages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name     string
			revision int64
		)
		if err := rows.Scan(&name, &revision); err != nil {
			return fmt.Errorf("scanning cached page: %w", err)
		}
		fmt.Fprintf(w, "%d\t%s\n", revision, name)
	}
	return rows.Err()
}

func evictPage(db *sql.DB, title string) (int64, error) {
	title = strings.ReplaceAll(strings.TrimSpace(title), "_", " ")
	res, err := db.Exec(`DELETE FROM pages WHERE name = ?`, title)
	if err != nil {
		return 0, fmt.Errorf("evicting %s: %w", title, err)
	}
	return res.RowsAffected()
}

func purgePages(db *sql.DB) (int64, error) {
	res, err := db.Exec(`DELETE FROM pages`)
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

func confirm(reader *bufio.Reader, question string) bool {
	for {
		fmt.Printf("%s [y/N]: ", question)
		input, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("Error reading input: %v", err)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(input)) {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		default:
			fmt.Println("Please enter y or n.")
		}
	}
}
