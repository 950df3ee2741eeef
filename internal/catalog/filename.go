package catalog

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// FilenameMetadata is what can be inferred from an archive's file name.
type FilenameMetadata struct {
	Series string
	Number string
	Volume int
	Year   int
	Title  string
}

var (
	yearPattern   = regexp.MustCompile(`\((\d{4})\)`)
	volumePattern = regexp.MustCompile(`(?i)\bv(?:ol(?:ume)?)?\.?\s*(\d{1,4})\b`)
	numberPattern = regexp.MustCompile(`(?:#|\b)(\d{1,4}(?:\.\d+)?)\b`)
	bracketed     = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	titleSplit    = regexp.MustCompile(`\s+-\s+`)
)

// NormalizeFilename cleans path and converts it to Unicode NFC so the same
// file imported from differently normalized sources maps to one record.
func NormalizeFilename(path string) string {
	if path == "" {
		return ""
	}
	return norm.NFC.String(filepath.Clean(path))
}

// ParseFilename infers series, issue number, volume, year, and title from
// names like "Saga v02 #013 (2013) - The Will.cbz".
func ParseFilename(path string) FilenameMetadata {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")

	var meta FilenameMetadata
	if m := yearPattern.FindStringSubmatch(base); m != nil {
		meta.Year, _ = strconv.Atoi(m[1])
	}

	withoutTags := strings.TrimSpace(bracketed.ReplaceAllString(base, " "))
	head := withoutTags
	if parts := titleSplit.Split(withoutTags, 2); len(parts) == 2 {
		head = parts[0]
		meta.Title = collapseSpaces(parts[1])
	}

	if m := volumePattern.FindStringSubmatchIndex(head); m != nil {
		meta.Volume, _ = strconv.Atoi(head[m[2]:m[3]])
		head = head[:m[0]] + " " + head[m[1]:]
	}

	series := head
	if locs := numberPattern.FindAllStringSubmatchIndex(head, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		meta.Number = strings.TrimLeft(head[last[2]:last[3]], "0")
		if meta.Number == "" || strings.HasPrefix(meta.Number, ".") {
			meta.Number = "0" + meta.Number
		}
		series = head[:last[0]]
	}

	series = strings.TrimRightFunc(collapseSpaces(series), func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '#'
	})
	if series != "" {
		meta.Series = titleCase(series)
	}
	return meta
}

func titleCase(value string) string {
	if strings.ToLower(value) != value {
		return value
	}
	return cases.Title(language.Und).String(value)
}

func collapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
