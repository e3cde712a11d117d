package ofx

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Tag extraction works with two composable strategies, tried in order:
//
//  1. closed-tag: <TAG>value</TAG>, tolerant of embedded whitespace and
//     newlines (the XML dialect);
//  2. open-tag-to-boundary: <TAG>value terminated by the next '<' or a line
//     break (the SGML dialect, where scalar tags are never closed).
//
// Block extraction scans for an opening tag and either the matching closing
// tag or, absent one, the next sibling opening tag. SGML-dialect files never
// close repeating blocks, so the boundary-by-next-sibling rule is required.

var (
	patternMu    sync.RWMutex
	patternCache = map[string]*regexp.Regexp{}
)

func cachedPattern(expr string) *regexp.Regexp {
	patternMu.RLock()
	re, ok := patternCache[expr]
	patternMu.RUnlock()
	if ok {
		return re
	}

	re = regexp.MustCompile(expr)
	patternMu.Lock()
	patternCache[expr] = re
	patternMu.Unlock()
	return re
}

func closedTagPattern(tag string) *regexp.Regexp {
	return cachedPattern(fmt.Sprintf(`(?is)<%s\s*>(.*?)</%s\s*>`, regexp.QuoteMeta(tag), regexp.QuoteMeta(tag)))
}

func openTagPattern(tag string) *regexp.Regexp {
	return cachedPattern(fmt.Sprintf(`(?i)<%s\s*>([^<\r\n]*)`, regexp.QuoteMeta(tag)))
}

func openingTagPattern(tag string) *regexp.Regexp {
	return cachedPattern(fmt.Sprintf(`(?i)<%s\s*>`, regexp.QuoteMeta(tag)))
}

func closingTagPattern(tag string) *regexp.Regexp {
	return cachedPattern(fmt.Sprintf(`(?i)</%s\s*>`, regexp.QuoteMeta(tag)))
}

// tagValue extracts the scalar value of tag from doc, trying the closed-tag
// strategy first and falling back to the open-tag form. The empty string
// means the tag is absent (or carried an empty value).
func tagValue(doc, tag string) string {
	if m := closedTagPattern(tag).FindStringSubmatch(doc); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := openTagPattern(tag).FindStringSubmatch(doc); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// tagBlock extracts the first aggregate block for tag, or "" when absent.
func tagBlock(doc, tag string) string {
	blocks := tagBlocks(doc, tag)
	if len(blocks) == 0 {
		return ""
	}
	return blocks[0]
}

// tagBlocks extracts every aggregate block for tag. Each block runs from the
// opening tag to the matching closing tag when one exists before the next
// sibling, otherwise to the next sibling opening tag or end of input.
func tagBlocks(doc, tag string) []string {
	openings := openingTagPattern(tag).FindAllStringIndex(doc, -1)
	if len(openings) == 0 {
		return nil
	}

	closing := closingTagPattern(tag)
	blocks := make([]string, 0, len(openings))
	for i, loc := range openings {
		start := loc[1]
		end := len(doc)
		if i+1 < len(openings) {
			end = openings[i+1][0]
		}
		segment := doc[start:end]
		if m := closing.FindStringIndex(segment); m != nil {
			segment = segment[:m[0]]
		}
		blocks = append(blocks, segment)
	}
	return blocks
}

// normalizeLineEndings folds CRLF and lone CR into LF before parsing.
func normalizeLineEndings(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	return strings.ReplaceAll(raw, "\r", "\n")
}
