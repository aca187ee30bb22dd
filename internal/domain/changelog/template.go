package changelog

import (
	"strings"
	"time"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// DefaultHeading is the release block heading.
const DefaultHeading = "## [{version}] - {date}"

// DateLayout is the layout of {date}.
const DateLayout = "2006-01-02"

var knownVariables = map[string]bool{
	"package":  true,
	"version":  true,
	"date":     true,
	"repo_url": true,
}

// Vars are the values substituted into a template.
type Vars struct {
	Package string
	Version string
	Date    time.Time
	RepoURL string
}

func (v Vars) lookup(name string) string {
	switch name {
	case "package":
		return v.Package
	case "version":
		return v.Version
	case "date":
		if v.Date.IsZero() {
			return ""
		}
		return v.Date.Format(DateLayout)
	case "repo_url":
		return v.RepoURL
	}
	return ""
}

type segment struct {
	text     string
	variable string
}

// Template is a parsed heading template.
type Template struct {
	source   string
	segments []segment
}

// ParseTemplate parses s. Variables are written {name}; "{{" and "}}" are
// literal braces. Unknown variables and unbalanced braces are TemplateInvalid.
func ParseTemplate(s string) (Template, error) {
	const op = "changelog.ParseTemplate"

	t := Template{source: s}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return Template{}, rperrors.Coded(rperrors.CodeTemplateInvalid, op,
					"unclosed variable at offset %d in %q", i, s)
			}
			name := strings.TrimSpace(s[i+1 : i+end])
			if !knownVariables[name] {
				return Template{}, rperrors.Coded(rperrors.CodeTemplateInvalid, op,
					"unknown variable {%s} (want package, version, date or repo_url)", name).
					WithDetail("variable", name)
			}
			flush()
			t.segments = append(t.segments, segment{variable: name})
			i += end
		case c == '}':
			return Template{}, rperrors.Coded(rperrors.CodeTemplateInvalid, op,
				"unmatched } at offset %d in %q", i, s)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

// MustParseTemplate is ParseTemplate for constants.
func MustParseTemplate(s string) Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the template source.
func (t Template) String() string {
	return t.source
}

// Execute renders the template.
func (t Template) Execute(v Vars) string {
	var sb strings.Builder
	for _, seg := range t.segments {
		if seg.variable != "" {
			sb.WriteString(v.lookup(seg.variable))
			continue
		}
		sb.WriteString(seg.text)
	}
	return sb.String()
}
