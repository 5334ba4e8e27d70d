// Package pattern matches object keys against declarative templates and
// extracts typed metadata from them.
//
// A template is a literal string with named placeholders in braces:
//
//	{start_time:%Y%m%d_%H%M}_{product}.tif
//
// A placeholder without a format captures free text. A "d" format captures
// an integer. A format containing strftime directives captures a timestamp
// decoded into a time.Time. Matching is anchored to the full key, so keys
// sharing a prefix with a matching key do not match.
package pattern

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	watcherrors "github.com/objectwatch/objectwatch/pkg/errors"
	"github.com/objectwatch/objectwatch/pkg/types"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindTime
)

type field struct {
	name   string
	kind   fieldKind
	layout string // Go time layout, kindTime only
}

// Pattern is a compiled metadata template. The zero value and the result of
// compiling an empty template accept every key and extract nothing.
type Pattern struct {
	raw    string
	re     *regexp.Regexp
	fields []field
}

// strftime directives understood in time placeholders, with their Go layout
// equivalent and the regexp that consumes them.
var timeDirectives = map[byte]struct {
	layout string
	expr   string
}{
	'Y': {"2006", `\d{4}`},
	'y': {"06", `\d{2}`},
	'm': {"01", `\d{2}`},
	'd': {"02", `\d{2}`},
	'j': {"002", `\d{3}`},
	'H': {"15", `\d{2}`},
	'M': {"04", `\d{2}`},
	'S': {"05", `\d{2}`},
	'b': {"Jan", `[A-Za-z]{3}`},
	'B': {"January", `[A-Za-z]+`},
	'a': {"Mon", `[A-Za-z]{3}`},
	'A': {"Monday", `[A-Za-z]+`},
}

// Compile parses a template into a Pattern. An empty template compiles to
// the accept-all pattern.
func Compile(template string) (*Pattern, error) {
	p := &Pattern{raw: template}
	if template == "" {
		return p, nil
	}

	var expr strings.Builder
	expr.WriteString(`\A`)
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			expr.WriteString(regexp.QuoteMeta(rest))
			break
		}
		expr.WriteString(regexp.QuoteMeta(rest[:open]))
		rest = rest[open+1:]
		closing := strings.IndexByte(rest, '}')
		if closing < 0 {
			return nil, watcherrors.New(watcherrors.CodeInvalidPattern,
				"unclosed placeholder in %q", template)
		}
		f, fieldExpr, err := compileField(rest[:closing], template)
		if err != nil {
			return nil, err
		}
		p.fields = append(p.fields, f)
		expr.WriteString("(" + fieldExpr + ")")
		rest = rest[closing+1:]
	}
	expr.WriteString(`\z`)

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, watcherrors.Wrap(watcherrors.CodeInvalidPattern, err,
			"compiling %q", template)
	}
	p.re = re
	return p, nil
}

func compileField(spec, template string) (field, string, error) {
	name := spec
	format := ""
	if i := strings.IndexByte(spec, ':'); i >= 0 {
		name, format = spec[:i], spec[i+1:]
	}

	switch {
	case format == "" || format == "s":
		return field{name: name, kind: kindString}, `.+?`, nil
	case format == "d":
		return field{name: name, kind: kindInt}, `\d+`, nil
	case strings.ContainsRune(format, '%'):
		layout, expr, err := compileTimeFormat(format, template)
		if err != nil {
			return field{}, "", err
		}
		return field{name: name, kind: kindTime, layout: layout}, expr, nil
	default:
		return field{}, "", watcherrors.New(watcherrors.CodeInvalidPattern,
			"unsupported placeholder format %q in %q", format, template)
	}
}

func compileTimeFormat(format, template string) (string, string, error) {
	var layout, expr strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			layout.WriteByte(c)
			expr.WriteString(regexp.QuoteMeta(string(c)))
			continue
		}
		i++
		if i >= len(format) {
			return "", "", watcherrors.New(watcherrors.CodeInvalidPattern,
				"dangling %% in time format %q in %q", format, template)
		}
		d, ok := timeDirectives[format[i]]
		if !ok {
			return "", "", watcherrors.New(watcherrors.CodeInvalidPattern,
				"unsupported time directive %%%c in %q", format[i], template)
		}
		layout.WriteString(d.layout)
		expr.WriteString(d.expr)
	}
	return layout.String(), expr.String(), nil
}

// String returns the original template.
func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.raw
}

// Extract matches key against the pattern. On a match it returns the decoded
// placeholder values; failing to match is an expected outcome reported by the
// second return value, never an error. A nil or empty pattern accepts every
// key and extracts nothing.
//
// A placeholder name appearing more than once must capture the same text in
// every position for the key to match.
func (p *Pattern) Extract(key string) (types.Metadata, bool) {
	if p == nil || p.re == nil {
		return types.Metadata{}, true
	}
	groups := p.re.FindStringSubmatch(key)
	if groups == nil {
		return nil, false
	}

	md := types.Metadata{}
	seen := map[string]string{}
	for i, f := range p.fields {
		raw := groups[i+1]
		if f.name == "" {
			continue
		}
		if prev, dup := seen[f.name]; dup {
			if prev != raw {
				return nil, false
			}
			continue
		}
		seen[f.name] = raw

		switch f.kind {
		case kindInt:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, false
			}
			md[f.name] = n
		case kindTime:
			t, err := time.Parse(f.layout, raw)
			if err != nil {
				return nil, false
			}
			md[f.name] = t
		default:
			md[f.name] = raw
		}
	}
	NormalizeTimes(md)
	return md, true
}

// NormalizeTimes folds split date and time fields together: start_date is
// combined into start_time, end_date into end_time, and an end_time earlier
// than start_time is rolled forward by whole days until ordered. The date
// keys are removed once folded.
func NormalizeTimes(md types.Metadata) {
	startTime, hasStart := md["start_time"].(time.Time)
	if startDate, ok := md["start_date"].(time.Time); ok {
		if hasStart {
			startTime = combine(startDate, startTime)
			md["start_time"] = startTime
		}
		if _, ok := md["end_date"]; !ok {
			md["end_date"] = startDate
		}
		delete(md, "start_date")
	}
	if endDate, ok := md["end_date"].(time.Time); ok {
		if endTime, ok := md["end_time"].(time.Time); ok {
			md["end_time"] = combine(endDate, endTime)
		}
		delete(md, "end_date")
	}
	if endTime, ok := md["end_time"].(time.Time); ok && hasStart {
		for startTime.After(endTime) {
			endTime = endTime.Add(24 * time.Hour)
		}
		md["end_time"] = endTime
	}
}

func combine(date, clock time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), clock.Location())
}
