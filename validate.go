package main

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxPageNameLen = 100
	maxItemIDLen   = 48
	maxItemNameLen = 100
	maxStatusIDLen = 64
	maxBannerIDLen = 64
)

var (
	validPageName = regexp.MustCompile(`^[\w\s\-\(\)\'\"\.]+$`)
	validItemID   = regexp.MustCompile(`^[\w\-]+$`)
	validStatusID = regexp.MustCompile(`^[A-Za-z0-9_]+#?$`)
	validBannerID = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

func checkInput(kind, value string, maxLen int, re *regexp.Regexp, allowed string) (string, error) {
	value = strings.TrimSpace(value)
	if n := utf8.RuneCountInString(value); n == 0 || n > maxLen {
		return "", validationErrorf("invalid %s: must be between 1 and %d characters", kind, maxLen)
	}
	if !re.MatchString(value) {
		return "", validationErrorf("invalid %s %q: only %s are allowed", kind, value, allowed)
	}
	return value, nil
}

// ValidatePageName cleans a wiki page or display name
func ValidatePageName(name string) (string, error) {
	return checkInput("page name", name, maxPageNameLen, validPageName, `letters, numbers, spaces, -, (), ', " and .`)
}

// ValidateItemID cleans a single item id
func ValidateItemID(id string) (string, error) {
	return checkInput("item id", id, maxItemIDLen, validItemID, "letters, numbers, _ and -")
}

// ValidateItemName cleans a single item display name
func ValidateItemName(name string) (string, error) {
	return checkInput("item name", name, maxItemNameLen, validPageName, `letters, numbers, spaces, -, (), ', " and .`)
}

// ValidateStatusID cleans a status icon identifier
func ValidateStatusID(id string) (string, error) {
	return checkInput("status id", id, maxStatusIDLen, validStatusID, "letters, numbers, underscores and an optional trailing #")
}

// ValidateBannerID cleans a banner identifier, dropping a leading "banner_"
func ValidateBannerID(id string) (string, error) {
	return checkInput("banner id", NormalizeBannerID(id), maxBannerIDLen, validBannerID, "letters, numbers and underscores")
}
