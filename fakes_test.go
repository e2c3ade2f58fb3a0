package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type wikiCall struct {
	Op    string // "save", "upload" or "move"
	Title string
}

// fakeWiki is an in-memory wiki. Titles are normalised the way MediaWiki does.
type fakeWiki struct {
	mu        sync.Mutex
	pages     map[string]string
	files     map[string]*RemoteFile
	calls     []wikiCall
	reads     int
	saveErr   map[string]error
	uploadErr map[string]error
	moveErr   map[string]error
}

func newFakeWiki() *fakeWiki {
	return &fakeWiki{
		pages:     map[string]string{},
		files:     map[string]*RemoteFile{},
		saveErr:   map[string]error{},
		uploadErr: map[string]error{},
		moveErr:   map[string]error{},
	}
}

func (w *fakeWiki) addPage(title, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pages[normalizeTitle(title)] = text
}

func (w *fakeWiki) addFile(name string, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	title := fileTitle(name)
	w.files[title] = &RemoteFile{Title: title, SHA1: sha1Hex(data), Size: int64(len(data)), URL: "https://wiki.test/images/" + name}
	if _, ok := w.pages[title]; !ok {
		w.pages[title] = ""
	}
}

func (w *fakeWiki) page(title string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	text, ok := w.pages[normalizeTitle(title)]
	return text, ok
}

func (w *fakeWiki) writes() []wikiCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]wikiCall(nil), w.calls...)
}

func (w *fakeWiki) PageContent(ctx context.Context, title string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reads++
	text, ok := w.pages[normalizeTitle(title)]
	if !ok {
		return "", fmt.Errorf("%w: page %s", ErrNotFound, title)
	}
	return text, nil
}

func (w *fakeWiki) ResolveRedirect(ctx context.Context, title string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reads++
	text, ok := w.pages[normalizeTitle(title)]
	if !ok {
		return "", fmt.Errorf("%w: page %s", ErrNotFound, title)
	}
	return redirectTarget(text), nil
}

func redirectTarget(text string) string {
	if !strings.HasPrefix(text, "#REDIRECT [[") {
		return ""
	}
	return normalizeTitle(strings.TrimSuffix(strings.TrimPrefix(text, "#REDIRECT [["), "]]"))
}

func (w *fakeWiki) RedirectsTo(ctx context.Context, title string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reads++
	key := normalizeTitle(title)
	var out []string
	for t, text := range w.pages {
		if redirectTarget(text) == key {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (w *fakeWiki) SavePage(ctx context.Context, title, content, summary string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := normalizeTitle(title)
	w.calls = append(w.calls, wikiCall{Op: "save", Title: key})
	if err := w.saveErr[key]; err != nil {
		return err
	}
	w.pages[key] = content
	return nil
}

func (w *fakeWiki) FileInfo(ctx context.Context, title string) (*RemoteFile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reads++
	f, ok := w.files[fileTitle(title)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, title)
	}
	cp := *f
	return &cp, nil
}

func (w *fakeWiki) FilesBySHA1(ctx context.Context, sha1 string) ([]RemoteFile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reads++
	var out []RemoteFile
	for _, f := range w.files {
		if f.SHA1 == sha1 {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (w *fakeWiki) Upload(ctx context.Context, title string, data []byte, description string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := fileTitle(title)
	w.calls = append(w.calls, wikiCall{Op: "upload", Title: key})
	if err := w.uploadErr[key]; err != nil {
		return err
	}
	w.files[key] = &RemoteFile{Title: key, SHA1: sha1Hex(data), Size: int64(len(data))}
	if _, ok := w.pages[key]; !ok {
		w.pages[key] = description
	}
	return nil
}

func (w *fakeWiki) Move(ctx context.Context, from, to, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	src, dst := fileTitle(from), fileTitle(to)
	w.calls = append(w.calls, wikiCall{Op: "move", Title: src})
	if err := w.moveErr[src]; err != nil {
		return err
	}
	if _, ok := w.pages[dst]; ok {
		return fmt.Errorf("articleexists: %s", dst)
	}
	text, ok := w.pages[src]
	if !ok {
		return fmt.Errorf("%w: page %s", ErrNotFound, src)
	}
	w.pages[dst] = text
	w.pages[src] = redirectText(dst)
	if f, ok := w.files[src]; ok {
		f.Title = dst
		w.files[dst] = f
		delete(w.files, src)
	}
	return nil
}

// fakeSource serves fixed bytes per URL and counts what it hands out
type fakeSource struct {
	mu      sync.Mutex
	data    map[string][]byte
	errs    map[string]error
	fetches int
	bytes   int
	urls    []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{data: map[string][]byte{}, errs: map[string]error{}}
}

func (s *fakeSource) add(url string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[url] = data
}

func (s *fakeSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	s.urls = append(s.urls, url)
	if err := s.errs[url]; err != nil {
		return nil, err
	}
	d, ok := s.data[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	s.bytes += len(d)
	return append([]byte(nil), d...), nil
}

func (s *fakeSource) stats() (fetches, bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches, s.bytes
}

type eventRecorder struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *eventRecorder) Emit(e ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressEvent(nil), r.events...)
}
