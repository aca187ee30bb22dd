// Package sourcecontrol provides domain types for source control operations.
package sourcecontrol

import (
	"strings"
	"time"

	"github.com/relicta-tech/monorel/internal/domain/changes"
)

// CommitHash represents a git commit hash.
type CommitHash string

// Short returns the short (7 character) hash.
func (h CommitHash) Short() string {
	if len(h) > 7 {
		return string(h[:7])
	}
	return string(h)
}

// String returns the full hash.
func (h CommitHash) String() string {
	return string(h)
}

// IsEmpty returns true if the hash is empty.
func (h CommitHash) IsEmpty() bool {
	return h == ""
}

// Author represents a commit author.
type Author struct {
	Name  string
	Email string
}

// String renders "Name <email>", or just the name when there is no email.
func (a Author) String() string {
	if a.Email == "" {
		return a.Name
	}
	return a.Name + " <" + a.Email + ">"
}

// Commit represents a git commit entity.
type Commit struct {
	hash    CommitHash
	message string
	author  Author
	date    time.Time
	parents []CommitHash
}

// NewCommit creates a new Commit entity.
func NewCommit(hash CommitHash, message string, author Author, date time.Time) *Commit {
	return &Commit{
		hash:    hash,
		message: message,
		author:  author,
		date:    date,
	}
}

// Hash returns the commit hash.
func (c *Commit) Hash() CommitHash {
	return c.hash
}

// ShortHash returns the short commit hash.
func (c *Commit) ShortHash() string {
	return c.hash.Short()
}

// Message returns the full commit message.
func (c *Commit) Message() string {
	return c.message
}

// Subject returns the first line of the commit message.
func (c *Commit) Subject() string {
	subject, _, _ := strings.Cut(c.message, "\n")
	return strings.TrimSpace(subject)
}

// Author returns the commit author.
func (c *Commit) Author() Author {
	return c.author
}

// Date returns the commit date.
func (c *Commit) Date() time.Time {
	return c.date
}

// Parents returns the parent commit hashes.
func (c *Commit) Parents() []CommitHash {
	return c.parents
}

// SetParents sets the parent hashes.
func (c *Commit) SetParents(parents []CommitHash) {
	c.parents = parents
}

// IsMergeCommit returns true if this is a merge commit.
func (c *Commit) IsMergeCommit() bool {
	return len(c.parents) > 1
}

// Raw converts the commit for the conventional parser.
func (c *Commit) Raw() changes.RawCommit {
	return changes.RawCommit{
		Hash:    c.hash.String(),
		Author:  c.author.Name,
		Date:    c.date,
		Message: c.message,
	}
}

// Parse parses the commit message as a conventional commit.
func (c *Commit) Parse() *changes.ConventionalCommit {
	return changes.ParseConventionalCommit(c.hash.String(), c.message,
		changes.WithAuthor(c.author.Name), changes.WithDate(c.date))
}
