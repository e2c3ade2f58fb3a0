package main

import (
	"context"
	"errors"
	"strings"
)

// ContentSource fetches raw asset bytes. A missing source returns an error
// matching ErrNotFound.
type ContentSource interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// WikiReader reads wiki pages. Missing pages return an error matching ErrNotFound.
type WikiReader interface {
	PageContent(ctx context.Context, title string) (string, error)
	// ResolveRedirect returns the redirect target of title, or "" when the page
	// exists and is not a redirect.
	ResolveRedirect(ctx context.Context, title string) (string, error)
	// RedirectsTo lists the pages that redirect to title
	RedirectsTo(ctx context.Context, title string) ([]string, error)
}

// WikiWriter replaces the full content of a page
type WikiWriter interface {
	SavePage(ctx context.Context, title, content, summary string) error
}

// RemoteFile describes an uploaded wiki file
type RemoteFile struct {
	Title    string
	SHA1     string
	Size     int64
	URL      string
	Archived bool
}

// FileRepository reads and writes wiki files
type FileRepository interface {
	FileInfo(ctx context.Context, title string) (*RemoteFile, error)
	FilesBySHA1(ctx context.Context, sha1 string) ([]RemoteFile, error)
	Upload(ctx context.Context, title string, data []byte, description string) error
	// Move renames a file page, leaving a redirect at the old title
	Move(ctx context.Context, from, to, reason string) error
}

// Wiki is everything the pipelines need from the wiki
type Wiki interface {
	WikiReader
	WikiWriter
	FileRepository
}

// FileExists reports whether title is a real file page. One redirect hop is
// followed; a redirect that does not end on a file page is a miss.
func FileExists(ctx context.Context, r WikiReader, title string) (bool, error) {
	title = fileTitle(title)
	target, err := r.ResolveRedirect(ctx, title)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if target == "" {
		return true, nil
	}
	if !strings.HasPrefix(target, "File:") {
		return false, nil
	}
	next, err := r.ResolveRedirect(ctx, target)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return next == "", nil
}

// fileTitle returns the normalised "File:" title for a file name
func fileTitle(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "File:")
	return "File:" + normalizeTitle(name)
}

// normalizeTitle applies MediaWiki's title rules: underscores are spaces and
// the first letter is upper case.
func normalizeTitle(title string) string {
	title = strings.TrimSpace(strings.ReplaceAll(title, "_", " "))
	if title == "" {
		return title
	}
	if ns, rest, ok := strings.Cut(title, ":"); ok && knownNamespace(ns) {
		return ns + ":" + ucfirst(strings.TrimSpace(rest))
	}
	return ucfirst(title)
}

func knownNamespace(ns string) bool {
	switch ns {
	case "File", "Template", "Category", "User", "Module":
		return true
	}
	return false
}

func ucfirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}

func redirectText(target string) string {
	return "#REDIRECT [[" + fileTitle(target) + "]]"
}
