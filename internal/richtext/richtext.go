// Package richtext extracts plain text from the two document encodings found
// in Linear's local store: ProseMirror JSON trees (comment bodies, issue
// descriptionData) and base64-wrapped Y.js document state (issue content).
package richtext

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

func decodeJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// FlattenTree converts a ProseMirror document tree to plain text. The input
// may be the decoded tree (map/slice) or a JSON string of one; anything else
// yields "".
func FlattenTree(body any) string {
	if body == nil {
		return ""
	}
	if s, ok := body.(string); ok {
		tree, err := decodeJSON(s)
		if err != nil {
			// Not JSON: the body already is plain text.
			return s
		}
		body = tree
	}
	var sb strings.Builder
	flatten(body, &sb)
	return sb.String()
}

func flatten(node any, sb *strings.Builder) {
	switch n := node.(type) {
	case map[string]any:
		switch n["type"] {
		case "text":
			if text, ok := n["text"].(string); ok {
				sb.WriteString(text)
			}
		case "suggestion_userMentions":
			if attrs, ok := n["attrs"].(map[string]any); ok {
				if label, ok := attrs["label"].(string); ok && label != "" {
					sb.WriteString("@" + label)
				}
			}
		case "hardBreak":
			sb.WriteString("\n")
		default:
			if content, ok := n["content"].([]any); ok {
				for _, child := range content {
					flatten(child, sb)
				}
			}
		}
	case []any:
		for _, child := range n {
			flatten(child, sb)
		}
	}
}

// Denylist of ProseMirror structural node names that leak from the Y.js
// binary into the printable-run scan. Tuned against real Linear documents;
// do not extend casually, misclassification hides user text.
var skipExact = map[string]bool{
	"prosemirror": true, "paragraph": true, "heading": true,
	"bullet_list": true, "list_item": true, "ordered_list": true,
	"level": true, "link": true, "null": true, "strong": true,
	"em": true, "code": true, "table": true, "table_row": true,
	"table_cell": true, "table_header": true, "colspan": true,
	"rowspan": true, "colwidth": true, "issuemention": true,
	"label": true, "href": true, "title": true, "order": true,
	"attrs": true, "content": true, "marks": true, "type": true,
	"text": true, "doc": true, "blockquote": true, "code_block": true,
	"hard_break": true, "horizontal_rule": true, "image": true,
	"suggestion_usermentions": true, "todo_item": true, "done": true,
	"language": true,
}

var skipPrefixes = []string{"suggestion_usermentions", "issuemention", "prosemirror"}

var (
	// Printable ASCII plus the Hangul syllable block; Linear's Y.js blobs
	// interleave readable runs with binary framing.
	readableRun  = regexp.MustCompile(`[\x{ac00}-\x{d7af}\x20-\x7e]+`)
	yjsMarker    = regexp.MustCompile(`^w[\$\)\(A-Z]`)
	uuidShaped   = regexp.MustCompile(`^[a-f0-9-]{36}$`)
	hangulRune   = regexp.MustCompile(`[\x{ac00}-\x{d7af}]`)
	trailingOpen = regexp.MustCompile(`\s*\(\s*$`)
	leadingClose = regexp.MustCompile(`^\s*\)\s*`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// ExtractEncodedState pulls best-effort plain text out of a base64 Y.js
// contentState payload. Readability over fidelity: structural markers,
// UUIDs, and binary-looking runs are dropped. Failures yield "".
func ExtractEncodedState(contentState string) string {
	if contentState == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(contentState)
	if err != nil {
		return ""
	}

	var kept []string
	for _, run := range readableRun.FindAllString(string(decoded), -1) {
		run = strings.TrimSpace(run)
		runes := utf8.RuneCountInString(run)
		if runes < 2 {
			continue
		}
		lower := strings.ToLower(run)
		if skipExact[lower] {
			continue
		}
		if hasAnyPrefix(lower, skipPrefixes) {
			continue
		}
		if yjsMarker.MatchString(run) {
			continue
		}
		if strings.HasPrefix(run, "{") || strings.Contains(run, `{"`) {
			continue
		}
		if strings.HasPrefix(run, "link") && strings.Contains(run, "{") {
			continue
		}
		if uuidShaped.MatchString(run) {
			continue
		}
		if runes <= 2 && !hangulRune.MatchString(run) {
			continue
		}
		if specialRatio(run) > 0.3 {
			continue
		}
		kept = append(kept, run)
	}

	text := strings.Join(kept, " ")
	text = trailingOpen.ReplaceAllString(text, "")
	text = leadingClose.ReplaceAllString(text, "")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func specialRatio(s string) float64 {
	special, total := 0, 0
	for _, r := range s {
		total++
		switch r {
		case '(', ')', '[', ']', '{', '}', '$', '#', '@', '*', '&', '^', '%':
			special++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(special) / float64(total)
}
