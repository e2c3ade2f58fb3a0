package main

import (
	"io"
	"net/http"
	"strings"
	"testing"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

func newResponse(contentType, body string) *http.Response {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
	if contentType != "" {
		resp.Header.Set("Content-Type", contentType)
	}
	return resp
}

func TestImageHandlerCanHandle(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		expected    bool
	}{
		{
			name:        "png content type",
			url:         "https://cdn.example/img/sp/banner/gacha/banner_x_1.png",
			contentType: "image/png",
			expected:    true,
		},
		{
			name:        "jpeg content type",
			url:         "https://cdn.example/item/article/s/1.jpg",
			contentType: "image/jpeg",
			expected:    true,
		},
		{
			name:        "missing content type with image extension",
			url:         "https://cdn.example/status_1.png",
			contentType: "",
			expected:    true,
		},
		{
			name:        "octet stream with image extension",
			url:         "https://cdn.example/enemy/s/1.PNG",
			contentType: "application/octet-stream",
			expected:    true,
		},
		{
			name:        "octet stream without image extension",
			url:         "https://cdn.example/data.bin",
			contentType: "application/octet-stream",
			expected:    false,
		},
		{
			name:        "html page",
			url:         "https://cdn.example/status_1.png",
			contentType: "text/html; charset=utf-8",
			expected:    false,
		},
	}

	handler := &ImageHandler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := handler.CanHandle(tt.url, newResponse(tt.contentType, ""))
			if result != tt.expected {
				t.Errorf("CanHandle() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestImageHandlerHandle(t *testing.T) {
	handler := &ImageHandler{}

	result, err := handler.Handle("https://cdn.example/a.png", newResponse("image/png", "\x89PNG-data"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if string(result.Data) != "\x89PNG-data" {
		t.Errorf("Handle() data = %q", result.Data)
	}
	if result.ContentType != "image/png" {
		t.Errorf("Handle() content type = %q, want image/png", result.ContentType)
	}
}

func TestImageHandlerRejectsEmptyBody(t *testing.T) {
	handler := &ImageHandler{}

	if _, err := handler.Handle("https://cdn.example/a.png", newResponse("image/png", "")); err == nil {
		t.Error("Handle() should reject an empty body")
	}
}

func TestHTMLHandlerCanHandle(t *testing.T) {
	handler := &HTMLHandler{}

	if !handler.CanHandle("https://cdn.example/anything", newResponse("text/plain", "")) {
		t.Error("HTMLHandler should handle everything as fallback")
	}
}

func TestHTMLHandlerHandle(t *testing.T) {
	handler := &HTMLHandler{converter: md.NewConverter("", true, nil)}

	page := "<html><body><h1>Access denied</h1><p>Your request was <b>blocked</b>.</p></body></html>"
	result, err := handler.Handle("https://cdn.example/a.png", newResponse("text/html", page))

	if result != nil {
		t.Error("Handle() should not return content for an HTML page")
	}
	if err == nil {
		t.Fatal("Handle() should return an error")
	}
	for _, want := range []string{"Access denied", "**blocked**", "text/html"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not contain %q", err.Error(), want)
		}
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		in       string
		n        int
		expected string
	}{
		{"short", 10, "short"},
		{"collapse   \n\n spaces", 50, "collapse spaces"},
		{"abcdefghij", 4, "abcd..."},
	}

	for _, tt := range tests {
		if got := excerpt(tt.in, tt.n); got != tt.expected {
			t.Errorf("excerpt(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.expected)
		}
	}
}
