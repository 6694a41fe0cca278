package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedJSONRe    = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.+?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	controlCharRe   = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// ParseAIJSON decodes the first JSON value it can recover from model output.
// It accepts, in order: the raw text, a fenced code block, the first balanced
// object or array inside prose, and finally a repaired version of the text
// (trailing commas, bare keys, single quotes).
func ParseAIJSON(input string, target interface{}) error {
	input = strings.TrimSpace(strings.TrimPrefix(input, "\ufeff"))
	if input == "" {
		return fmt.Errorf("empty input")
	}

	for _, candidate := range jsonCandidates(input) {
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), target); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no JSON value found in model output: %s", truncateString(input, 100))
}

func jsonCandidates(input string) []string {
	candidates := []string{input}

	if m := fencedJSONRe.FindStringSubmatch(input); len(m) > 1 {
		body := strings.TrimSpace(m[1])
		if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
			candidates = append(candidates, body)
		}
	}

	embedded := firstBalanced(input)
	candidates = append(candidates, embedded)

	if embedded != "" {
		candidates = append(candidates, repairJSON(embedded))
	}
	candidates = append(candidates, repairJSON(input))

	return candidates
}

// firstBalanced returns the first balanced {...} or [...] span, whichever
// opens earlier.
func firstBalanced(input string) string {
	obj := strings.IndexByte(input, '{')
	arr := strings.IndexByte(input, '[')

	switch {
	case obj >= 0 && (arr < 0 || obj < arr):
		if s := balancedSpan(input[obj:], '{', '}'); s != "" {
			return s
		}
		if arr >= 0 {
			return balancedSpan(input[arr:], '[', ']')
		}
	case arr >= 0:
		if s := balancedSpan(input[arr:], '[', ']'); s != "" {
			return s
		}
		if obj >= 0 {
			return balancedSpan(input[obj:], '{', '}')
		}
	}
	return ""
}

// balancedSpan scans from input[0] (an opening delimiter) to its match,
// ignoring delimiters inside string literals.
func balancedSpan(input string, open, close byte) string {
	depth := 0
	inString := false
	escape := false

	for i := 0; i < len(input); i++ {
		ch := input[i]
		switch {
		case escape:
			escape = false
		case ch == '\\' && inString:
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return input[:i+1]
			}
		}
	}
	return ""
}

// repairJSON fixes the mistakes models make most often
func repairJSON(input string) string {
	s := strings.TrimSpace(input)
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = bareKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = singleToDoubleQuotes(s)
	return controlCharRe.ReplaceAllString(s, "")
}

// singleToDoubleQuotes swaps single quotes that open or close a token for
// double quotes, leaving apostrophes inside words and double-quoted strings alone.
func singleToDoubleQuotes(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	inDouble := false
	escape := false

	for i := 0; i < len(input); i++ {
		ch := input[i]
		if escape {
			b.WriteByte(ch)
			escape = false
			continue
		}
		switch {
		case ch == '\\':
			escape = true
		case ch == '"':
			inDouble = !inDouble
		case ch == '\'' && !inDouble && isQuoteBoundary(input, i):
			ch = '"'
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func isQuoteBoundary(s string, i int) bool {
	prev := prevNonSpace(s, i)
	next := nextNonSpace(s, i)
	opens := prev == 0 || strings.IndexByte(":,[{", prev) >= 0
	closes := next == 0 || strings.IndexByte(":,]}", next) >= 0
	return opens || closes
}

func prevNonSpace(s string, i int) byte {
	for j := i - 1; j >= 0; j-- {
		if s[j] != ' ' && s[j] != '\t' && s[j] != '\n' && s[j] != '\r' {
			return s[j]
		}
	}
	return 0
}

func nextNonSpace(s string, i int) byte {
	for j := i + 1; j < len(s); j++ {
		if s[j] != ' ' && s[j] != '\t' && s[j] != '\n' && s[j] != '\r' {
			return s[j]
		}
	}
	return 0
}

// truncateString truncates a string to maxLen bytes
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
