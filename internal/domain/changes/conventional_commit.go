package changes

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// Footer is a git trailer such as "Closes #12" or "BREAKING CHANGE: ...".
type Footer struct {
	Token string
	Value string
}

// IsBreaking reports whether the footer announces a breaking change.
func (f Footer) IsBreaking() bool {
	switch strings.ToUpper(f.Token) {
	case "BREAKING CHANGE", "BREAKING-CHANGE":
		return true
	}
	return false
}

// String renders the footer in trailer form.
func (f Footer) String() string {
	if strings.HasPrefix(f.Value, "#") && !f.IsBreaking() {
		return f.Token + " " + f.Value
	}
	return f.Token + ": " + f.Value
}

// ConventionalCommit represents a parsed commit message.
// Identity is the commit hash.
type ConventionalCommit struct {
	hash string

	commitType  CommitType
	scope       string
	description string
	body        string
	footers     []Footer

	breaking     bool
	breakingDesc string
	conventional bool

	author string
	date   time.Time

	rawMessage string
}

// ConventionalCommitOption is a functional option for parsing commits.
type ConventionalCommitOption func(*ConventionalCommit)

// WithAuthor sets the commit author.
func WithAuthor(name string) ConventionalCommitOption {
	return func(c *ConventionalCommit) {
		c.author = name
	}
}

// WithDate sets the commit date.
func WithDate(date time.Time) ConventionalCommitOption {
	return func(c *ConventionalCommit) {
		c.date = date
	}
}

var (
	// type(scope)!: description
	headerRegex = regexp.MustCompile(`^([A-Za-z][\w-]*)(?:\(([^()\r\n]+)\))?(!)?: +(\S.*)$`)

	// "Token: value" or "Token #value"; BREAKING CHANGE is the one token with a space.
	footerRegex = regexp.MustCompile(`^(BREAKING CHANGE|[A-Za-z][\w-]*)(?:: +| #)(.*)$`)
)

// ParseConventionalCommit parses a commit message. It never fails: a message
// that does not follow the grammar yields a commit with IsConventional()
// false, an empty type and the first line as description.
func ParseConventionalCommit(hash, message string, opts ...ConventionalCommitOption) *ConventionalCommit {
	c := &ConventionalCommit{
		hash:       hash,
		rawMessage: message,
	}
	for _, opt := range opts {
		opt(c)
	}

	normalized := strings.ReplaceAll(message, "\r\n", "\n")
	lines := strings.Split(strings.TrimSpace(normalized), "\n")
	header := strings.TrimSpace(lines[0])

	matches := headerRegex.FindStringSubmatch(header)
	if matches == nil {
		c.description = header
		c.body = strings.TrimSpace(strings.Join(lines[1:], "\n"))
		return c
	}

	c.conventional = true
	c.commitType = ParseCommitType(matches[1])
	c.scope = strings.TrimSpace(matches[2])
	c.breaking = matches[3] == "!"
	c.description = strings.TrimSpace(matches[4])

	c.body, c.footers = splitBodyAndFooters(lines[1:])
	for _, f := range c.footers {
		if f.IsBreaking() {
			c.breaking = true
			if c.breakingDesc == "" {
				c.breakingDesc = f.Value
			}
		}
	}
	return c
}

// splitBodyAndFooters separates free text from the trailing footer block.
// The footer block starts at the first paragraph whose first line is a footer;
// non-footer lines inside it continue the previous footer's value.
func splitBodyAndFooters(lines []string) (string, []Footer) {
	var bodyLines []string
	var footers []Footer
	inFooter := false
	prevBlank := true

	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if m := footerRegex.FindStringSubmatch(trimmed); m != nil && (inFooter || prevBlank) && !isBreakingBodyText(m) {
			inFooter = true
			value := strings.TrimSpace(m[2])
			if strings.HasPrefix(trimmed[len(m[1]):], " #") {
				value = "#" + value
			}
			footers = append(footers, Footer{Token: m[1], Value: value})
			prevBlank = false
			continue
		}
		if inFooter {
			if trimmed == "" {
				prevBlank = true
				continue
			}
			last := &footers[len(footers)-1]
			last.Value = strings.TrimSpace(last.Value + "\n" + strings.TrimSpace(trimmed))
			prevBlank = false
			continue
		}
		bodyLines = append(bodyLines, line)
		prevBlank = strings.TrimSpace(line) == ""
	}
	return strings.TrimSpace(strings.Join(bodyLines, "\n")), footers
}

// isBreakingBodyText rejects "BREAKING CHANGE #..." which is not a valid trailer.
func isBreakingBodyText(m []string) bool {
	return m[1] == "BREAKING CHANGE" && strings.HasPrefix(m[0][len(m[1]):], " #")
}

// Hash returns the commit hash.
func (c *ConventionalCommit) Hash() string {
	return c.hash
}

// ShortHash returns the first 7 characters of the hash.
func (c *ConventionalCommit) ShortHash() string {
	if len(c.hash) > 7 {
		return c.hash[:7]
	}
	return c.hash
}

// Type returns the commit type, empty for non-conventional commits.
func (c *ConventionalCommit) Type() CommitType {
	return c.commitType
}

// Scope returns the commit scope.
func (c *ConventionalCommit) Scope() string {
	return c.scope
}

// Description returns the header description.
func (c *ConventionalCommit) Description() string {
	return c.description
}

// Body returns the commit body without footers.
func (c *ConventionalCommit) Body() string {
	return c.body
}

// Footers returns the parsed trailers.
func (c *ConventionalCommit) Footers() []Footer {
	return append([]Footer(nil), c.footers...)
}

// IsBreaking returns true if the commit is marked breaking by "!" or a footer.
func (c *ConventionalCommit) IsBreaking() bool {
	return c.breaking
}

// BreakingDescription returns the BREAKING CHANGE footer text, if any.
func (c *ConventionalCommit) BreakingDescription() string {
	return c.breakingDesc
}

// IsConventional reports whether the header matched the grammar.
func (c *ConventionalCommit) IsConventional() bool {
	return c.conventional
}

// Author returns the commit author.
func (c *ConventionalCommit) Author() string {
	return c.author
}

// Date returns the commit date.
func (c *ConventionalCommit) Date() time.Time {
	return c.date
}

// RawMessage returns the original message.
func (c *ConventionalCommit) RawMessage() string {
	return c.rawMessage
}

// Warning returns a NotConventional error for non-conventional commits and
// nil otherwise.
func (c *ConventionalCommit) Warning() error {
	if c.conventional {
		return nil
	}
	return rperrors.Coded(rperrors.CodeNotConventional, "changes.Parse",
		"commit %s is not a conventional commit: %q", c.ShortHash(), c.description)
}

// Header renders "type(scope)!: description".
func (c *ConventionalCommit) Header() string {
	if !c.conventional {
		return c.description
	}
	var sb strings.Builder
	sb.WriteString(string(c.commitType))
	if c.scope != "" {
		fmt.Fprintf(&sb, "(%s)", c.scope)
	}
	if c.breaking && !c.hasBreakingFooter() {
		sb.WriteString("!")
	}
	sb.WriteString(": ")
	sb.WriteString(c.description)
	return sb.String()
}

func (c *ConventionalCommit) hasBreakingFooter() bool {
	for _, f := range c.footers {
		if f.IsBreaking() {
			return true
		}
	}
	return false
}

// Format renders the commit back into a message that parses to the same
// type, scope, breaking flag, description and footers.
func (c *ConventionalCommit) Format() string {
	var sb strings.Builder
	sb.WriteString(c.Header())
	if c.body != "" {
		sb.WriteString("\n\n")
		sb.WriteString(c.body)
	}
	if len(c.footers) > 0 {
		sb.WriteString("\n")
		for i, f := range c.footers {
			if i == 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(f.String())
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// String returns the header.
func (c *ConventionalCommit) String() string {
	return c.Header()
}
