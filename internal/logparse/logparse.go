// Package logparse turns a raw, possibly multi-line log message into a
// canonical ErrorDefinition plus its parsed stack trace.
package logparse

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"errormonitor/internal/models"
)

const promotedPrefix = "[promoted from WARNING] "

var (
	digitsPattern    = regexp.MustCompile(`\d+`)
	stackFramePattern = regexp.MustCompile(`^\s*File "(.*)", line (\d+), in (.*)$`)
	deployPathPattern = regexp.MustCompile(`.*/\d{4,6}-\d{4}-[0-9a-f]{12}\.\d+/`)
	memcacheKeyStopPattern = regexp.MustCompile(`^(.*?)[([{'"]`)
)

// noneValue is substituted for absent ids when computing the fingerprint,
// matching the reference implementation's literal sentinel.
const noneValue = "None"

// Parse splits message into a title, builds the identifier tuple, computes
// the 8-hex-char error key fingerprint, and parses any embedded stack trace.
// It never returns an error: a malformed message yields a definition with a
// possibly empty title rather than aborting ingestion.
func Parse(message string, status, level int) (models.ErrorDefinition, models.StackTrace, string) {
	lines := strings.Split(message, "\n")

	title := ""
	if len(lines) > 0 {
		title = lines[0]
	}
	if strings.TrimSpace(title) == "" && len(lines) > 0 {
		title = lines[len(lines)-1]
	}
	title = strings.TrimPrefix(title, promotedPrefix)

	statusStr := fmt.Sprintf("%d", status)
	levelStr := fmt.Sprintf("%d", level)
	prefix := statusStr + " " + levelStr + " "

	id0 := prefix + digitsPattern.ReplaceAllString(title, "%%")

	id1, id2, id3 := deriveIdentifiers(title, id0, prefix)

	key := fingerprint(id0, id1, id2, id3)

	def := models.ErrorDefinition{
		Key:    key,
		Title:  title,
		Status: statusStr,
		Level:  levelStr,
		Id0:    id0,
		Id1:    id1,
		Id2:    id2,
		Id3:    id3,
	}

	stack, stackKey := parseStack(lines)
	return def, stack, stackKey
}

// deriveIdentifiers applies the non-combinable rule list, in declared order,
// to the pre-prefix title.
func deriveIdentifiers(title, id0, prefix string) (id1, id2, id3 string) {
	if strings.Contains(title, "object has no attribute") || strings.HasPrefix(title, "Error in signature for") {
		return "", "", ""
	}

	const memcachePrefix = "Memcache set failed for "
	if strings.HasPrefix(title, memcachePrefix) {
		rest := title[len(memcachePrefix):]
		if m := memcacheKeyStopPattern.FindStringSubmatch(rest); m != nil {
			return "", "", m[1]
		}
		return "", "", rest
	}

	words := strings.Fields(id0)
	if len(words) > 2 {
		end := len(words)
		if end > 5 {
			end = 5
		}
		id1 = prefix + strings.Join(words[2:end], " ")
	}
	if n := len(words); n >= 3 {
		id2 = prefix + strings.Join(words[n-3:], " ")
	}
	return id1, id2, ""
}

// fingerprint returns the first 8 hex chars of MD5(id0||id1||id2||id3), with
// "None" substituted for any absent id.
func fingerprint(id0, id1, id2, id3 string) string {
	orNone := func(s string) string {
		if s == "" {
			return noneValue
		}
		return s
	}
	sum := md5.Sum([]byte(orNone(id0) + orNone(id1) + orNone(id2) + orNone(id3)))
	return hex.EncodeToString(sum[:])[:8]
}

// parseStack scans message lines after the title for "File ..., line ..., in
// ..." frames, skipping Traceback headers and any line that does not match;
// truncated logs are tolerated, not rejected.
func parseStack(lines []string) (models.StackTrace, string) {
	if len(lines) <= 1 {
		return nil, stackKeyOf(nil)
	}

	var stack models.StackTrace
	for _, line := range lines[1:] {
		if strings.HasPrefix(strings.TrimSpace(line), "Traceback") {
			continue
		}
		m := stackFramePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		filename := stripDeployPath(m[1])
		stack = append(stack, models.StackFrame{
			Filename: filename,
			Lineno:   m[2],
			Function: m[3],
		})
	}

	return stack, stackKeyOf(stack)
}

// stripDeployPath removes a leading path segment of the form
// .../DDDD-DDDD-<12 hex>.<digits>/ — the versioned deploy directory prefix —
// from a stack frame's filename.
func stripDeployPath(filename string) string {
	return deployPathPattern.ReplaceAllString(filename, "")
}

// stackKeyOf computes MD5(join("|", "{filename}:{function}")), deliberately
// excluding line numbers so refactors do not fragment the stack identity.
func stackKeyOf(stack models.StackTrace) string {
	parts := make([]string, len(stack))
	for i, f := range stack {
		parts[i] = f.Filename + ":" + f.Function
	}
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
