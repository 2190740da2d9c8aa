// Package command recognizes bot commands embedded in comment text.
// It only decides whether a line is a command and extracts its literal
// text; interpreting the command is left to later stages.
package command

import (
	"regexp"
	"strings"
)

var (
	keywordRe  = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	modifierRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*:[A-Za-z0-9._/<>-]+$`)
)

// Token is one recognized command line.
type Token struct {
	// Raw is the line as it appeared in the comment.
	Raw string
	// Normalized is the canonical command form: prefix, keyword and
	// modifiers joined by single spaces.
	Normalized string
}

// Matcher decides whether a single line of text is a bot command.
// A command line starts (after trimming surrounding whitespace) with
// the prefix token, followed by a command keyword and optional
// key:value modifiers, e.g.
//
//	bot: rebuild arch:intel instance:AWS
//	bot: cancel [job:4711]
//
// Modifiers may be written bare or wrapped in square brackets.
type Matcher struct {
	prefix string
}

// NewMatcher creates a matcher for the given command prefix, e.g. "bot:".
func NewMatcher(prefix string) *Matcher {
	return &Matcher{prefix: strings.TrimSpace(prefix)}
}

// Match reports whether line is a bot command and returns its
// normalized form. Matching is anchored: the prefix must be the first
// token of the line, so commands quoted mid-sentence never match.
func (m *Matcher) Match(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, m.prefix) {
		return "", false
	}

	rest := trimmed[len(m.prefix):]
	// "bot:rebuild" without a separating space is not a command; the
	// prefix is a standalone token.
	if rest != "" && !strings.HasPrefix(rest, " ") && !strings.HasPrefix(rest, "\t") {
		return "", false
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}

	keyword := fields[0]
	if !keywordRe.MatchString(keyword) {
		return "", false
	}

	parts := []string{m.prefix, keyword}
	for _, field := range fields[1:] {
		modifier := strings.TrimSuffix(strings.TrimPrefix(field, "["), "]")
		if !modifierRe.MatchString(modifier) {
			return "", false
		}
		parts = append(parts, modifier)
	}

	return strings.Join(parts, " "), true
}

// Scan applies Match to every line of text and returns the tokens
// found, in order. It is used both to find commands in new comment
// text and as the self-command guard on text the bot is about to post.
func (m *Matcher) Scan(text string) []Token {
	var tokens []Token
	for _, line := range strings.Split(text, "\n") {
		if normalized, ok := m.Match(line); ok {
			tokens = append(tokens, Token{Raw: line, Normalized: normalized})
		}
	}
	return tokens
}
