// Package sqlexec extracts SQL from model answers, classifies destructive
// statements, and executes gated queries against the database.
//
// Both the extraction and the destructive check are regex heuristics, not a
// SQL parser. The destructive check deliberately over-classifies (a keyword
// after a semicolon inside a string literal will trip it) because the cost
// of a false positive is a blocked query, while the cost of a false negative
// is a mutated database.
package sqlexec

import (
	"regexp"
	"strings"
)

// sqlKeywords is the fixed list of leading keywords that make a snippet
// "look like SQL". Lenient extraction hangs off this gate: models do not
// reliably fence their code, but arbitrary prose must not pass.
var sqlKeywords = []string{
	"SELECT", "WITH", "INSERT", "UPDATE", "DELETE",
	"CREATE", "DROP", "ALTER", "TRUNCATE", "EXPLAIN", "SHOW",
}

var (
	taggedFencePattern  = regexp.MustCompile("(?is)```sql[ \t]*\n(.*?)```")
	genericFencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9]*[ \t]*\n(.*?)```")

	// Destructive keywords must appear word-bounded at the start of a
	// statement: either the start of the text or right after a separator.
	destructivePattern = regexp.MustCompile(`(?:^|;)\s*(INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE|CREATE)\b`)

	lineCommentPattern  = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// ExtractSQL pulls the first SQL statement out of a model answer. The
// policy is tiered, first match wins: an explicitly tagged ```sql fence, a
// generic fence whose content looks like SQL, then a contiguous-line scan.
func ExtractSQL(answer string) (string, bool) {
	if match := taggedFencePattern.FindStringSubmatch(answer); match != nil {
		if sql := strings.TrimSpace(match[1]); sql != "" {
			return sql, true
		}
	}

	for _, match := range genericFencePattern.FindAllStringSubmatch(answer, -1) {
		sql := strings.TrimSpace(match[1])
		if LooksLikeSQL(sql) {
			return sql, true
		}
	}

	return extractBareSQL(answer)
}

// extractBareSQL scans for the first line that looks like SQL and
// accumulates contiguous non-blank lines from there, stopping at the next
// blank line. The accumulated text is accepted only if it ends with a
// semicolon or still looks like SQL as a whole.
func extractBareSQL(answer string) (string, bool) {
	lines := strings.Split(answer, "\n")

	for i, line := range lines {
		if !LooksLikeSQL(strings.TrimSpace(line)) {
			continue
		}

		var block []string
		for _, next := range lines[i:] {
			if strings.TrimSpace(next) == "" {
				break
			}

			block = append(block, strings.TrimSpace(next))
		}

		sql := strings.Join(block, "\n")
		if strings.HasSuffix(strings.TrimSpace(sql), ";") || LooksLikeSQL(sql) {
			return sql, true
		}

		return "", false
	}

	return "", false
}

// LooksLikeSQL reports whether the text starts with one of the known SQL
// keywords, case-insensitively.
func LooksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, keyword := range sqlKeywords {
		if upper == keyword || strings.HasPrefix(upper, keyword+" ") ||
			strings.HasPrefix(upper, keyword+"\n") || strings.HasPrefix(upper, keyword+"(") {
			return true
		}
	}

	return false
}

// IsDestructiveQuery reports whether the statement is expected to mutate
// schema or data. Comments are stripped first so a commented-out keyword
// does not shadow the real statement head.
func IsDestructiveQuery(sql string) bool {
	cleaned := lineCommentPattern.ReplaceAllString(sql, "")
	cleaned = blockCommentPattern.ReplaceAllString(cleaned, "")
	cleaned = strings.ToUpper(strings.TrimSpace(cleaned))

	return destructivePattern.MatchString(cleaned)
}

// RemoveSQL strips every fenced code block, plus any literal occurrence of
// the extracted SQL, from the answer, leaving the prose remainder.
func RemoveSQL(answer, sql string) string {
	remainder := genericFencePattern.ReplaceAllString(answer, "")
	if sql != "" {
		remainder = strings.ReplaceAll(remainder, sql, "")
	}

	return strings.TrimSpace(remainder)
}
