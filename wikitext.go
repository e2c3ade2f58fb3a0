package main

import (
	"regexp"
	"strings"
)

// TemplateCall is one {{Name|...}} invocation found in wikitext
type TemplateCall struct {
	Name       string
	Params     map[string]string
	Positional []string
}

// Param returns a named parameter trimmed of whitespace
func (t TemplateCall) Param(name string) string {
	return strings.TrimSpace(t.Params[name])
}

// ParseTemplates returns every template invocation in text, outer templates
// before the templates nested in their parameters. Triple-brace parameter
// references are not templates and are kept verbatim inside values.
func ParseTemplates(text string) []TemplateCall {
	var calls []TemplateCall
	for i := 0; i < len(text); {
		switch {
		case strings.HasPrefix(text[i:], "{{{"):
			i = skipBalanced(text, i)
		case strings.HasPrefix(text[i:], "{{"):
			end := skipBalanced(text, i)
			if end > len(text) || !strings.HasSuffix(text[:end], "}}") {
				// unterminated; nothing after this point is a complete template
				return calls
			}
			body := text[i+2 : end-2]
			calls = append(calls, parseTemplateBody(body))
			calls = append(calls, ParseTemplates(innerParams(body))...)
			i = end
		default:
			i++
		}
	}
	return calls
}

// skipBalanced returns the index just past the construct opening at start
func skipBalanced(text string, start int) int {
	var stack []byte
	j := start
	for j < len(text) {
		switch {
		case strings.HasPrefix(text[j:], "{{{"):
			stack = append(stack, 'a')
			j += 3
		case strings.HasPrefix(text[j:], "{{"):
			stack = append(stack, 't')
			j += 2
		case strings.HasPrefix(text[j:], "[["):
			stack = append(stack, 'l')
			j += 2
		case len(stack) > 0 && stack[len(stack)-1] == 'a' && strings.HasPrefix(text[j:], "}}}"):
			stack = stack[:len(stack)-1]
			j += 3
		case len(stack) > 0 && stack[len(stack)-1] == 't' && strings.HasPrefix(text[j:], "}}"):
			stack = stack[:len(stack)-1]
			j += 2
		case len(stack) > 0 && stack[len(stack)-1] == 'l' && strings.HasPrefix(text[j:], "]]"):
			stack = stack[:len(stack)-1]
			j += 2
		default:
			j++
		}
		if len(stack) == 0 {
			return j
		}
	}
	return len(text) + 1
}

// splitTopLevel splits s on sep where sep is not nested in braces or links
func splitTopLevel(s string, sep byte, limit int) []string {
	var parts []string
	depth := 0
	last := 0
	for j := 0; j < len(s); j++ {
		switch {
		case strings.HasPrefix(s[j:], "{{") || strings.HasPrefix(s[j:], "[["):
			depth++
			j++
		case (strings.HasPrefix(s[j:], "}}") || strings.HasPrefix(s[j:], "]]")) && depth > 0:
			depth--
			j++
		case s[j] == sep && depth == 0:
			if limit > 0 && len(parts) == limit-1 {
				continue
			}
			parts = append(parts, s[last:j])
			last = j + 1
		}
	}
	return append(parts, s[last:])
}

func parseTemplateBody(body string) TemplateCall {
	parts := splitTopLevel(body, '|', 0)
	call := TemplateCall{
		Name:   strings.TrimSpace(parts[0]),
		Params: map[string]string{},
	}
	for _, p := range parts[1:] {
		kv := splitTopLevel(p, '=', 2)
		if len(kv) == 2 {
			call.Params[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
			continue
		}
		call.Positional = append(call.Positional, strings.TrimSpace(p))
	}
	return call
}

func innerParams(body string) string {
	_, rest, ok := strings.Cut(body, "|")
	if !ok {
		return ""
	}
	return rest
}

// templateNameMatches compares template names the way MediaWiki resolves them.
// fold also ignores case beyond the first letter.
func templateNameMatches(got, want string, fold bool) bool {
	got = strings.TrimPrefix(normalizeTitle(got), "Template:")
	if fold {
		return strings.EqualFold(got, want)
	}
	return got == normalizeTitle(want)
}

var (
	argDefaultRe = regexp.MustCompile(`^\{\{\{[^|}]+\|([^}]+)\}\}\}`)
	commentRe    = regexp.MustCompile(`(?s)<!--.*?-->`)
	pipedLinkRe  = regexp.MustCompile(`\[\[[^\]|]*\|([^\]]*)\]\]`)
	linkRe       = regexp.MustCompile(`\[\[([^\]]*)\]\]`)
	quoteRe      = regexp.MustCompile(`'{2,}`)
	tagRe        = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
)

// unwrapArgDefault turns "{{{id|1234}}}" into "1234"
func unwrapArgDefault(v string) string {
	v = strings.TrimSpace(v)
	if m := argDefaultRe.FindStringSubmatch(v); m != nil {
		return strings.TrimSpace(m[1])
	}
	return v
}

// stripCode removes markup and nested templates, keeping the visible text
func stripCode(v string) string {
	v = commentRe.ReplaceAllString(v, "")
	v = removeTemplates(v)
	v = pipedLinkRe.ReplaceAllString(v, "$1")
	v = linkRe.ReplaceAllString(v, "$1")
	v = quoteRe.ReplaceAllString(v, "")
	v = tagRe.ReplaceAllString(v, "")
	return strings.TrimSpace(v)
}

func removeTemplates(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); {
		if strings.HasPrefix(v[i:], "{{") {
			i = min(skipBalanced(v, i), len(v))
			continue
		}
		b.WriteByte(v[i])
		i++
	}
	return b.String()
}

// ExtractedAsset is one (id, name) pair read from a page's templates
type ExtractedAsset struct {
	ID       string
	Name     string
	ItemType string
}

// ExtractAssets reads the identifiers of an extraction family from page text.
// Templates without a usable id or name are skipped; no templates means no assets.
func ExtractAssets(family AssetFamily, pageTitle, text string) []ExtractedAsset {
	rule := family.rule()
	if rule.Strategy != DiscoverExtracted {
		return nil
	}
	seen := map[string]bool{}
	var out []ExtractedAsset
	for _, call := range ParseTemplates(text) {
		if !templateNameMatches(call.Name, rule.Template, rule.FoldCase) {
			continue
		}
		id := unwrapArgDefault(call.Param("id"))
		if id == "" || seen[id] {
			continue
		}
		asset := ExtractedAsset{ID: id}
		switch family {
		case FamilyItemPage:
			asset.Name = stripCode(call.Param("name"))
			asset.ItemType = strings.ToLower(stripCode(call.Param("item_type")))
			if asset.ItemType == "" {
				asset.ItemType = "article"
			}
			if asset.Name == "" || !isItemType(asset.ItemType) {
				continue
			}
		case FamilyBullet:
			asset.Name = stripCode(call.Param("name"))
			if asset.Name == "" {
				continue
			}
		case FamilySkin, FamilyNPC, FamilyArtifact, FamilySummon:
			asset.Name = pageTitle
		}
		seen[id] = true
		out = append(out, asset)
	}
	return out
}
