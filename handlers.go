package main

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/cenkalti/backoff/v5"
)

// Assets larger than this are rejected rather than uploaded
const maxAssetBytes = 32 << 20

// ContentHandler processes responses based on URL and header inspection
type ContentHandler interface {
	CanHandle(url string, resp *http.Response) bool
	Handle(url string, resp *http.Response) (*ContentResult, error)
}

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// ImageHandler accepts image payloads
type ImageHandler struct{}

func (h *ImageHandler) CanHandle(url string, resp *http.Response) bool {
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "image/") {
		return true
	}
	// some edge nodes omit the type or send a generic one
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		return imageExtensions[strings.ToLower(path.Ext(url))]
	}
	return false
}

func (h *ImageHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxAssetBytes {
		return nil, backoff.Permanent(fmt.Errorf("%s is larger than %d bytes", url, maxAssetBytes))
	}
	if len(body) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("%s returned an empty body", url))
	}
	return &ContentResult{Data: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

// HTMLHandler turns an HTML page served in place of an asset (maintenance or
// block pages) into a readable error (fallback)
type HTMLHandler struct {
	converter *md.Converter
}

func (h *HTMLHandler) CanHandle(url string, resp *http.Response) bool {
	return true // Always handles as fallback
}

func (h *HTMLHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	text := string(body)
	if h.converter != nil {
		if markdown, err := h.converter.ConvertString(text); err == nil {
			text = markdown
		}
	}
	return nil, fmt.Errorf("%s served %q instead of an image: %s", url, resp.Header.Get("Content-Type"), excerpt(text, 200))
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
