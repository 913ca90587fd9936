// Package compress implements the definition compressor: deterministic,
// ordered text rewrites on tool and parameter descriptions, applied
// recursively through a tool's input schema. The ordered-rule-list idiom
// walks a fixed, ordered list of case-insensitive regular expressions
// rather than a single combined matcher, so each rule sees the output of
// the ones before it.
package compress

import (
	"regexp"
	"strings"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/store"
)

// minDescriptionLength is the gate below which a description is passed
// through unmodified.
const minDescriptionLength = 20

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// rules is the ordered rewrite set. Order is part of the contract: a
// later rule sees the output of earlier ones.
var rules = []rule{
	// Filler-phrase removal.
	{regexp.MustCompile(`(?i)this tool (enables|allows) (users? )?to `), ""},
	{regexp.MustCompile(`(?i)this (tool|function|method) (is used to|is for|can be used to) `), ""},
	{regexp.MustCompile(`(?i)^use this (tool|function) to `), ""},
	{regexp.MustCompile(`(?i)\bin order to\b`), "to"},
	{regexp.MustCompile(`(?i)\bplease note that\b`), ""},

	// Long noun/verb -> short form.
	{regexp.MustCompile(`(?i)\brepository\b`), "repo"},
	{regexp.MustCompile(`(?i)\brepositories\b`), "repos"},
	{regexp.MustCompile(`(?i)\bretrieve\b`), "get"},
	{regexp.MustCompile(`(?i)\bretrieves\b`), "gets"},
	{regexp.MustCompile(`(?i)\bretrieving\b`), "getting"},
	{regexp.MustCompile(`(?i)\bconfiguration\b`), "config"},
	{regexp.MustCompile(`(?i)\bapplication\b`), "app"},
	{regexp.MustCompile(`(?i)\binformation\b`), "info"},
	{regexp.MustCompile(`(?i)\bdocumentation\b`), "docs"},
	{regexp.MustCompile(`(?i)\benvironment\b`), "env"},
	{regexp.MustCompile(`(?i)\bidentifier\b`), "id"},
	{regexp.MustCompile(`(?i)\bparameters\b`), "params"},
	{regexp.MustCompile(`(?i)\bspecified\b`), "given"},
	{regexp.MustCompile(`(?i)\bspecify\b`), "give"},
	{regexp.MustCompile(`(?i)\butilize\b`), "use"},
	{regexp.MustCompile(`(?i)\butilizes\b`), "uses"},

	// Collapse repeated punctuation and whitespace.
	{regexp.MustCompile(`\.{2,}`), "."},
	{regexp.MustCompile(`\s{2,}`), " "},
}

// Apply rewrites description if it is a string of at least
// minDescriptionLength characters; otherwise it is returned unchanged.
// The transformation is deterministic and idempotent on short strings
// (they are never touched).
func Apply(description string) string {
	if len(description) < minDescriptionLength {
		return description
	}
	out := description
	for _, r := range rules {
		out = r.pattern.ReplaceAllString(out, r.replacement)
	}
	out = strings.TrimSpace(out)
	out = recapitalize(out)
	return out
}

// recapitalize upper-cases the first letter of each sentence, restoring
// readability after filler-phrase removal may have left a lowercase
// fragment at the start of the string.
func recapitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	capitalizeNext := true
	for i, r := range runes {
		if capitalizeNext && isLetter(r) {
			runes[i] = []rune(strings.ToUpper(string(r)))[0]
			capitalizeNext = false
			continue
		}
		if r == '.' || r == '!' || r == '?' {
			capitalizeNext = true
		} else if r != ' ' {
			capitalizeNext = false
		}
	}
	return string(runes)
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// CompressTool rewrites t.Description and recursively walks its input
// schema (description, then properties.*, then items). The tool's Name
// is never touched. Returns a new Tool; the input is not mutated.
func CompressTool(t store.Tool) store.Tool {
	out := t.Clone()
	out.Description = Apply(out.Description)
	if out.InputSchema != nil {
		out.InputSchema = compressSchema(out.InputSchema)
	}
	return out
}

// compressSchema recursively rewrites "description" fields through
// "properties" and "items", leaving every other schema keyword untouched.
func compressSchema(schema map[string]any) map[string]any {
	if desc, ok := schema["description"].(string); ok {
		schema["description"] = Apply(desc)
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				props[name] = compressSchema(sub)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		schema["items"] = compressSchema(items)
	}
	return schema
}
