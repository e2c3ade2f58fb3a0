package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultWikiAPIURL    = "https://gbf.wiki/api.php"
	defaultWikiUserAgent = "gbf-wiki-bot/1.0"
	csrfTokenTTL         = 30 * time.Minute
)

// MediaWikiOptions configures a MediaWikiClient
type MediaWikiOptions struct {
	APIURL    string
	UserAgent string
	Username  string
	Password  string
	EditDelay time.Duration
	MaxLag    int
	Retries   uint
	Timeout   time.Duration
}

// MediaWikiClient talks to the MediaWiki action API. It implements Wiki.
type MediaWikiClient struct {
	opts    MediaWikiOptions
	client  *http.Client
	limiter *rate.Limiter
	tokens  *ttlcache.Cache[string, string]
	cache   *PageCache
	logger  *zap.Logger

	loginMu  sync.Mutex
	loggedIn bool
}

// NewMediaWikiClient creates a client with its own cookie jar. cache may be nil.
func NewMediaWikiClient(opts MediaWikiOptions, cache *PageCache, logger *zap.Logger) (*MediaWikiClient, error) {
	if opts.APIURL == "" {
		opts.APIURL = defaultWikiAPIURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultWikiUserAgent
	}
	if opts.Retries == 0 {
		opts.Retries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	limit := rate.Inf
	if opts.EditDelay > 0 {
		limit = rate.Every(opts.EditDelay)
	}

	return &MediaWikiClient{
		opts:    opts,
		client:  &http.Client{Jar: jar, Timeout: opts.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		tokens: ttlcache.New(
			ttlcache.WithTTL[string, string](csrfTokenTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
		cache:  cache,
		logger: logger,
	}, nil
}

type apiPage struct {
	Title     string `json:"title"`
	Missing   bool   `json:"missing"`
	Invalid   bool   `json:"invalid"`
	LastRevID int64  `json:"lastrevid"`
	Revisions []struct {
		RevID int64 `json:"revid"`
		Slots struct {
			Main struct {
				Content string `json:"content"`
			} `json:"main"`
		} `json:"slots"`
	} `json:"revisions"`
	ImageInfo []apiImage `json:"imageinfo"`
}

type apiImage struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	SHA1  string `json:"sha1"`
	Size  int64  `json:"size"`
	URL   string `json:"url"`
}

type apiRedirect struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type apiResponse struct {
	Error *APIError `json:"error"`
	Query struct {
		Normalized []apiRedirect `json:"normalized"`
		Redirects  []apiRedirect `json:"redirects"`
		Pages      []apiPage     `json:"pages"`
		AllImages  []apiImage    `json:"allimages"`
		Backlinks  []struct {
			Title string `json:"title"`
		} `json:"backlinks"`
		Tokens     struct {
			CSRF  string `json:"csrftoken"`
			Login string `json:"logintoken"`
		} `json:"tokens"`
	} `json:"query"`
	Login struct {
		Result string `json:"result"`
		Reason string `json:"reason"`
	} `json:"login"`
	Edit struct {
		Result   string `json:"result"`
		NoChange bool   `json:"nochange"`
	} `json:"edit"`
	Upload struct {
		Result   string          `json:"result"`
		Warnings json.RawMessage `json:"warnings"`
	} `json:"upload"`
	Move struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"move"`
	Parse struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	} `json:"parse"`
}

// upload payload kept separate so each retry can rebuild the multipart body
type uploadFile struct {
	name string
	data []byte
}

func retryableAPIError(code string) bool {
	switch code {
	case "maxlag", "ratelimited", "readonly", "internal_api_error_DBQueryError":
		return true
	}
	return false
}

// call performs one API request. Reads use GET; writes and uploads use POST.
func (c *MediaWikiClient) call(ctx context.Context, post bool, params url.Values, file *uploadFile) (*apiResponse, error) {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	if c.opts.MaxLag > 0 {
		params.Set("maxlag", strconv.Itoa(c.opts.MaxLag))
	}

	action := params.Get("action")
	return backoff.Retry(ctx, func() (*apiResponse, error) {
		req, err := c.newRequest(ctx, post, params, file)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("wiki %s: %w", action, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			httpErr := &HTTPError{StatusCode: resp.StatusCode, URL: c.opts.APIURL}
			if retryableStatus(resp.StatusCode) {
				return nil, httpErr
			}
			return nil, backoff.Permanent(httpErr)
		}

		var out apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decoding wiki %s response: %w", action, err))
		}
		if out.Error != nil {
			if retryableAPIError(out.Error.Code) {
				if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
					return nil, errors.Join(out.Error, backoff.RetryAfter(secs))
				}
				return nil, out.Error
			}
			return nil, backoff.Permanent(out.Error)
		}
		return &out, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.opts.Retries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Debug("retrying wiki request", zap.String("action", action), zap.Duration("wait", wait), zap.Error(err))
		}),
	)
}

func (c *MediaWikiClient) newRequest(ctx context.Context, post bool, params url.Values, file *uploadFile) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	switch {
	case file != nil:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, vs := range params {
			for _, v := range vs {
				if err := w.WriteField(k, v); err != nil {
					return nil, err
				}
			}
		}
		part, err := w.CreateFormFile("file", file.name)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, bytes.NewReader(file.data)); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.opts.APIURL, &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
	case post:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.opts.APIURL, strings.NewReader(params.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.opts.APIURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	return req, nil
}

func (c *MediaWikiClient) query(ctx context.Context, params url.Values) (*apiResponse, error) {
	params.Set("action", "query")
	resp, err := c.call(ctx, false, params, nil)
	if err != nil {
		return nil, transient(err)
	}
	return resp, nil
}

// login signs in with the bot credentials once per client
func (c *MediaWikiClient) login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.loggedIn {
		return nil
	}
	if c.opts.Username == "" || c.opts.Password == "" {
		return errors.New("wiki credentials are not configured")
	}

	tok, err := c.query(ctx, url.Values{"meta": {"tokens"}, "type": {"login"}})
	if err != nil {
		return fmt.Errorf("fetching login token: %w", err)
	}
	resp, err := c.call(ctx, true, url.Values{
		"action":     {"login"},
		"lgname":     {c.opts.Username},
		"lgpassword": {c.opts.Password},
		"lgtoken":    {tok.Query.Tokens.Login},
	}, nil)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	if resp.Login.Result != "Success" {
		return fmt.Errorf("logging in as %s: %s %s", c.opts.Username, resp.Login.Result, resp.Login.Reason)
	}
	c.loggedIn = true
	c.logger.Info("logged in to wiki", zap.String("user", c.opts.Username))
	return nil
}

// csrfToken returns the edit token, fetching it when the cached one expired
func (c *MediaWikiClient) csrfToken(ctx context.Context) (string, error) {
	if err := c.login(ctx); err != nil {
		return "", err
	}
	var loadErr error
	loader := ttlcache.LoaderFunc[string, string](
		func(cache *ttlcache.Cache[string, string], key string) *ttlcache.Item[string, string] {
			resp, err := c.query(ctx, url.Values{"meta": {"tokens"}, "type": {key}})
			if err != nil {
				loadErr = err
				return nil
			}
			return cache.Set(key, resp.Query.Tokens.CSRF, ttlcache.DefaultTTL)
		},
	)
	item := c.tokens.Get("csrf", ttlcache.WithLoader[string, string](loader))
	if item == nil {
		if loadErr == nil {
			loadErr = errors.New("empty token response")
		}
		return "", fmt.Errorf("fetching csrf token: %w", loadErr)
	}
	return item.Value(), nil
}

// write runs a token-bearing request, refreshing the token once if the wiki
// rejects it.
func (c *MediaWikiClient) write(ctx context.Context, params url.Values, file *uploadFile) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		tok, err := c.csrfToken(ctx)
		if err != nil {
			return nil, err
		}
		params.Set("token", tok)
		resp, err := c.call(ctx, true, params, file)
		var apiErr *APIError
		if attempt == 0 && errors.As(err, &apiErr) && apiErr.Code == "badtoken" {
			c.tokens.Delete("csrf")
			continue
		}
		return resp, err
	}
}

func firstPage(resp *apiResponse) (*apiPage, error) {
	if len(resp.Query.Pages) == 0 {
		return nil, fmt.Errorf("wiki response has no pages")
	}
	p := &resp.Query.Pages[0]
	if p.Invalid {
		return nil, validationErrorf("invalid title %q", p.Title)
	}
	if p.Missing {
		return nil, fmt.Errorf("%w: page %s", ErrNotFound, p.Title)
	}
	return p, nil
}

// PageContent returns the current text of title. Cached text is used when its
// revision matches the live one.
func (c *MediaWikiClient) PageContent(ctx context.Context, title string) (string, error) {
	if c.cache != nil {
		info, err := c.query(ctx, url.Values{"prop": {"info"}, "titles": {title}})
		if err != nil {
			return "", err
		}
		page, err := firstPage(info)
		if err != nil {
			return "", err
		}
		text, rev, ok, err := c.cache.Get(ctx, page.Title)
		if err != nil {
			c.logger.Warn("page cache read failed", zap.String("title", page.Title), zap.Error(err))
		} else if ok && rev == page.LastRevID {
			c.logger.Debug("page cache hit", zap.String("title", page.Title), zap.Int64("revision", rev))
			return text, nil
		}
	}

	resp, err := c.query(ctx, url.Values{
		"prop":    {"revisions"},
		"rvprop":  {"ids|content"},
		"rvslots": {"main"},
		"titles":  {title},
	})
	if err != nil {
		return "", err
	}
	page, err := firstPage(resp)
	if err != nil {
		return "", err
	}
	if len(page.Revisions) == 0 {
		return "", fmt.Errorf("%w: page %s has no revisions", ErrNotFound, page.Title)
	}
	rev := page.Revisions[0]
	if c.cache != nil {
		if err := c.cache.Put(ctx, page.Title, rev.Slots.Main.Content, rev.RevID); err != nil {
			c.logger.Warn("page cache write failed", zap.String("title", page.Title), zap.Error(err))
		}
	}
	return rev.Slots.Main.Content, nil
}

// ResolveRedirect returns the first redirect hop of title, or "" when the page
// is not a redirect.
func (c *MediaWikiClient) ResolveRedirect(ctx context.Context, title string) (string, error) {
	resp, err := c.query(ctx, url.Values{"titles": {title}, "redirects": {"1"}})
	if err != nil {
		return "", err
	}
	from := title
	for _, n := range resp.Query.Normalized {
		if n.From == title {
			from = n.To
		}
	}
	for _, r := range resp.Query.Redirects {
		if r.From == from {
			return r.To, nil
		}
	}
	if _, err := firstPage(resp); err != nil {
		return "", err
	}
	return "", nil
}

// RedirectsTo lists the redirect pages pointing at title
func (c *MediaWikiClient) RedirectsTo(ctx context.Context, title string) ([]string, error) {
	resp, err := c.query(ctx, url.Values{
		"list":          {"backlinks"},
		"bltitle":       {title},
		"blfilterredir": {"redirects"},
		"bllimit":       {"max"},
	})
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(resp.Query.Backlinks))
	for _, b := range resp.Query.Backlinks {
		titles = append(titles, b.Title)
	}
	return titles, nil
}

// SavePage replaces the text of title
func (c *MediaWikiClient) SavePage(ctx context.Context, title, content, summary string) error {
	resp, err := c.write(ctx, url.Values{
		"action":  {"edit"},
		"title":   {title},
		"text":    {content},
		"summary": {summary},
		"bot":     {"1"},
	}, nil)
	if err != nil {
		return fmt.Errorf("saving %s: %w", title, err)
	}
	if resp.Edit.Result != "Success" {
		return fmt.Errorf("saving %s: edit result %q", title, resp.Edit.Result)
	}
	if c.cache != nil {
		if err := c.cache.Delete(ctx, normalizeTitle(title)); err != nil {
			c.logger.Warn("page cache invalidation failed", zap.String("title", title), zap.Error(err))
		}
	}
	c.logger.Debug("page saved", zap.String("title", title), zap.Bool("nochange", resp.Edit.NoChange))
	return nil
}

// FileInfo returns the current revision of a file page
func (c *MediaWikiClient) FileInfo(ctx context.Context, title string) (*RemoteFile, error) {
	title = fileTitle(title)
	resp, err := c.query(ctx, url.Values{
		"titles": {title},
		"prop":   {"imageinfo"},
		"iiprop": {"sha1|size|url"},
	})
	if err != nil {
		return nil, err
	}
	page, err := firstPage(resp)
	if err != nil {
		return nil, err
	}
	if len(page.ImageInfo) == 0 {
		return nil, fmt.Errorf("%w: %s has no file revision", ErrNotFound, title)
	}
	ii := page.ImageInfo[0]
	return &RemoteFile{Title: page.Title, SHA1: ii.SHA1, Size: ii.Size, URL: ii.URL}, nil
}

// FilesBySHA1 lists the files whose current revision has the given digest
func (c *MediaWikiClient) FilesBySHA1(ctx context.Context, sha1 string) ([]RemoteFile, error) {
	resp, err := c.query(ctx, url.Values{
		"list":    {"allimages"},
		"aisha1":  {sha1},
		"aiprop":  {"sha1|size|url"},
		"ailimit": {"10"},
	})
	if err != nil {
		return nil, err
	}
	files := make([]RemoteFile, 0, len(resp.Query.AllImages))
	for _, img := range resp.Query.AllImages {
		title := img.Title
		if title == "" {
			title = fileTitle(img.Name)
		}
		files = append(files, RemoteFile{
			Title:    title,
			SHA1:     img.SHA1,
			Size:     img.Size,
			URL:      img.URL,
			Archived: strings.Contains(img.URL, "/archive/"),
		})
	}
	return files, nil
}

// Upload stores data under title, replacing an existing revision
func (c *MediaWikiClient) Upload(ctx context.Context, title string, data []byte, description string) error {
	name := strings.TrimPrefix(fileTitle(title), "File:")
	resp, err := c.write(ctx, url.Values{
		"action":         {"upload"},
		"filename":       {name},
		"text":           {description},
		"comment":        {"Batch upload"},
		"ignorewarnings": {"1"},
	}, &uploadFile{name: name, data: data})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", name, transient(err))
	}
	if resp.Upload.Result != "Success" {
		return fmt.Errorf("uploading %s: result %q %s", name, resp.Upload.Result, resp.Upload.Warnings)
	}
	return nil
}

// Move renames a file page and leaves a redirect behind
func (c *MediaWikiClient) Move(ctx context.Context, from, to, reason string) error {
	from, to = fileTitle(from), fileTitle(to)
	resp, err := c.write(ctx, url.Values{
		"action":         {"move"},
		"from":           {from},
		"to":             {to},
		"reason":         {reason},
		"movetalk":       {"1"},
		"ignorewarnings": {"1"},
	}, nil)
	if err != nil {
		return fmt.Errorf("moving %s to %s: %w", from, to, transient(err))
	}
	if resp.Move.To == "" {
		return fmt.Errorf("moving %s to %s: empty move result", from, to)
	}
	if c.cache != nil {
		for _, t := range []string{from, to} {
			if err := c.cache.Delete(ctx, t); err != nil {
				c.logger.Warn("page cache invalidation failed", zap.String("title", t), zap.Error(err))
			}
		}
	}
	c.logger.Debug("file moved", zap.String("from", from), zap.String("to", resp.Move.To))
	return nil
}

// ParsePage renders title to HTML
func (c *MediaWikiClient) ParsePage(ctx context.Context, title string) (string, error) {
	resp, err := c.call(ctx, false, url.Values{
		"action": {"parse"},
		"page":   {title},
		"prop":   {"text"},
	}, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "missingtitle" {
			return "", fmt.Errorf("%w: page %s", ErrNotFound, title)
		}
		return "", transient(err)
	}
	return resp.Parse.Text, nil
}
