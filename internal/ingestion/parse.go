package ingestion

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
)

// Source names the layout of an import payload.
type Source string

const (
	SourceAuto       Source = "auto"
	SourceRouteviews Source = "routeviews"
	SourceRIPE       Source = "ripe"
	SourceText       Source = "text"
)

// ErrUnknownSource is returned for a source name ParseSource does not know.
var ErrUnknownSource = errors.New("unknown source")

// ParseSource maps a user-supplied name onto a Source. Empty means auto.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceAuto:
		return SourceAuto, nil
	case SourceRouteviews:
		return SourceRouteviews, nil
	case SourceRIPE:
		return SourceRIPE, nil
	case SourceText:
		return SourceText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// DetectSource guesses the payload layout from its first non-space byte.
func DetectSource(data []byte) Source {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return SourceText
	}
	switch trimmed[0] {
	case '[':
		return SourceRouteviews
	case '{':
		return SourceRIPE
	}
	return SourceText
}

// ParseResult holds the prefixes read from one payload.
type ParseResult struct {
	Source   Source          `json:"source"`
	Prefixes []prefix.Prefix `json:"prefixes"`
	// Invalid counts entries that were not CIDR blocks or addresses.
	Invalid int `json:"invalid"`
	// Duplicates counts entries that canonicalized to an earlier one.
	Duplicates int `json:"duplicates"`
}

// ripeAnswer is the announced-prefixes answer served by RIPEstat.
type ripeAnswer struct {
	Data struct {
		Prefixes []struct {
			Prefix string `json:"prefix"`
		} `json:"prefixes"`
	} `json:"data"`
}

// Parse reads a payload in the given layout. Entries are canonicalized and
// deduplicated in input order. Malformed JSON is an error; malformed
// entries are only counted.
func Parse(source Source, data []byte) (*ParseResult, error) {
	if source == SourceAuto || source == "" {
		source = DetectSource(data)
	}

	var raw []string
	switch source {
	case SourceRouteviews:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decoding routeviews payload: %w", err)
		}
	case SourceRIPE:
		var ans ripeAnswer
		if err := json.Unmarshal(data, &ans); err != nil {
			return nil, fmt.Errorf("decoding ripe payload: %w", err)
		}
		raw = make([]string, 0, len(ans.Data.Prefixes))
		for _, p := range ans.Data.Prefixes {
			raw = append(raw, p.Prefix)
		}
	case SourceText:
		var err error
		if raw, err = textLines(data); err != nil {
			return nil, fmt.Errorf("reading text payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	res := &ParseResult{Source: source, Prefixes: make([]prefix.Prefix, 0, len(raw))}
	seen := make(map[prefix.Prefix]struct{}, len(raw))
	for _, s := range raw {
		p, err := prefix.Parse(s)
		if err != nil {
			res.Invalid++
			continue
		}
		if _, dup := seen[p]; dup {
			res.Duplicates++
			continue
		}
		seen[p] = struct{}{}
		res.Prefixes = append(res.Prefixes, p)
	}
	return res, nil
}

// textLines returns the first field of every line, ignoring blank lines and
// '#' comments.
func textLines(data []byte) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.TrimSuffix(fields[0], ","))
	}
	return out, sc.Err()
}
