// Package lazy implements lazy tool visibility: replacing the advertised
// tool list with a reduced view plus an injected search meta-tool, and
// serving tools/call on that meta-tool locally by constructing a
// response the proxy answers itself, never forwarded upstream.
package lazy

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/jsonvalue"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/store"
)

// Mode selects how much of each tool's shape survives into the visible
// tools/list response.
type Mode string

const (
	Off        Mode = "off"
	Minimal    Mode = "minimal"
	Catalog    Mode = "catalog"
	SearchOnly Mode = "search_only"
)

// MetaToolName is the exact, fixed name of the injected search tool.
const MetaToolName = "ultra_lean_mcp_proxy.search_tools"

// ShouldActivate reports whether lazy visibility should engage for this
// tools/list response: tools_count >= minTools OR tokens(tools) >=
// minTokens.
func ShouldActivate(mode Mode, toolCount, tokenCount, minTools, minTokens int) bool {
	if mode == Off || mode == "" {
		return false
	}
	return toolCount >= minTools || tokenCount >= minTokens
}

// MetaTool builds the synthetic ultra_lean_mcp_proxy.search_tools
// descriptor. In catalog mode its description additionally carries a
// concatenated name list so a client with no working memory of the
// catalog can still browse by name.
//
// The meta-tool is appended in every active mode (minimal, catalog,
// search_only): a client left with zero tools and no way to discover
// the search tool could never recover any tool.
func MetaTool(mode Mode, rawTools []store.Tool) store.Tool {
	desc := "Search the full tool catalog by keyword and return the best-matching tools."
	if mode == Catalog {
		names := make([]string, len(rawTools))
		for i, t := range rawTools {
			names[i] = t.Name
		}
		desc = desc + " Catalog: " + strings.Join(names, ", ")
	}
	return store.Tool{
		Name:        MetaToolName,
		Description: desc,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":           map[string]any{"type": "string"},
				"server":          map[string]any{"type": "string"},
				"top_k":           map[string]any{"type": "integer"},
				"include_schemas": map[string]any{"type": "boolean"},
			},
			"required": []any{"query"},
		},
	}
}

// VisibleTools narrows rawTools to the wire shape dictated by mode and
// appends the meta-tool. Off and any unrecognized mode return rawTools
// unchanged (the caller is expected to have already checked
// ShouldActivate before calling with anything but Off).
func VisibleTools(mode Mode, rawTools []store.Tool) []store.Tool {
	switch mode {
	case Minimal:
		out := make([]store.Tool, 0, len(rawTools)+1)
		for _, t := range rawTools {
			out = append(out, minimalView(t))
		}
		return append(out, MetaTool(mode, rawTools))
	case Catalog:
		out := make([]store.Tool, 0, len(rawTools)+1)
		for _, t := range rawTools {
			out = append(out, catalogView(t))
		}
		return append(out, MetaTool(mode, rawTools))
	case SearchOnly:
		return []store.Tool{MetaTool(mode, rawTools)}
	default:
		return rawTools
	}
}

// minimalView keeps {name, description, inputSchema: {type, properties:
// {name: {type}}}}, preserving only property names and their declared
// types.
func minimalView(t store.Tool) store.Tool {
	props := map[string]any{}
	if t.InputSchema != nil {
		if orig, ok := t.InputSchema["properties"].(map[string]any); ok {
			for name, raw := range orig {
				typ := "string"
				if sub, ok := raw.(map[string]any); ok {
					if ty, ok := sub["type"].(string); ok {
						typ = ty
					}
				}
				props[name] = map[string]any{"type": typ}
			}
		}
	}
	return store.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: map[string]any{"type": "object", "properties": props},
	}
}

// catalogView keeps only {name, inputSchema: {type: "object"}}; the
// name list itself travels in the meta-tool's description.
func catalogView(t store.Tool) store.Tool {
	return store.Tool{
		Name:        t.Name,
		InputSchema: map[string]any{"type": "object"},
	}
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Match is one scored search result.
type Match struct {
	Tool  store.Tool
	Score float64
}

// Search scores every tool in catalog against query using an additive
// name/description/property-name match scheme and returns the top-k
// matches sorted descending by score (ties broken by catalog order for
// determinism).
func Search(query string, catalog []store.Tool, topK int) []Match {
	if topK <= 0 {
		topK = 5
	}
	q := strings.ToLower(strings.TrimSpace(query))
	tokens := tokenPattern.FindAllString(q, -1)

	matches := make([]Match, 0, len(catalog))
	for _, t := range catalog {
		score := scoreTool(q, tokens, t)
		matches = append(matches, Match{Tool: t, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

func scoreTool(q string, tokens []string, t store.Tool) float64 {
	name := strings.ToLower(t.Name)
	desc := strings.ToLower(t.Description)
	propNames := concatPropertyNames(t.InputSchema)
	haystack := name + " " + desc + " " + propNames

	var score float64
	if q != "" && strings.Contains(name, q) {
		score += 4
	}
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if strings.Contains(name, tok) {
			score += 2
		}
		if strings.Contains(desc, tok) {
			score += 1
		}
		if strings.Contains(propNames, tok) {
			score += 1.25
		}
		if strings.Contains(haystack, tok) {
			score += 0.2
		}
	}
	return score
}

func concatPropertyNames(schema map[string]any) string {
	if schema == nil {
		return ""
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return ""
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

// SearchResult is the full local-answer payload for a
// ultra_lean_mcp_proxy.search_tools call.
type SearchResult struct {
	Matches            []Match
	FullCatalogAttached bool
	FullCatalog        []store.Tool
}

// BuildSearchResult runs Search and, when the best match's score falls
// below minConfidence and fallbackFullOnLowConfidence is set, also
// attaches the full catalog.
func BuildSearchResult(query string, catalog []store.Tool, topK int, minConfidence float64, fallbackFullOnLowConfidence bool) SearchResult {
	matches := Search(query, catalog, topK)
	result := SearchResult{Matches: matches}

	best := 0.0
	if len(matches) > 0 {
		best = matches[0].Score
	}
	if best < minConfidence && fallbackFullOnLowConfidence {
		result.FullCatalogAttached = true
		result.FullCatalog = catalog
	}
	return result
}

// ToResultValue renders a SearchResult as the jsonvalue payload shipped
// back to the client as the search tool's structuredContent.
func ToResultValue(r SearchResult) jsonvalue.Value {
	matches := make([]any, len(r.Matches))
	for i, m := range r.Matches {
		matches[i] = map[string]any{
			"name":        m.Tool.Name,
			"description": m.Tool.Description,
			"score":       m.Score,
		}
	}
	out := map[string]any{"matches": matches}
	if r.FullCatalogAttached {
		tools := make([]any, len(r.FullCatalog))
		for i, t := range r.FullCatalog {
			tm := map[string]any{"name": t.Name}
			if t.Description != "" {
				tm["description"] = t.Description
			}
			if t.InputSchema != nil {
				tm["inputSchema"] = t.InputSchema
			}
			tools[i] = tm
		}
		out["tools"] = tools
	}
	return out
}
