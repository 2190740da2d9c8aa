// Package comment isolates new text in PR/issue comments and applies
// bot updates to them with bounded retries.
package comment

import "unicode/utf8"

// Comment actions delivered by the webhook payload.
const (
	ActionCreated = "created"
	ActionEdited  = "edited"
)

// Diff returns the part of newBody that was added by the given action.
//
// For a created comment the whole body is new. For an edited comment
// the diff is positional: edits are assumed append-only, so the new
// text is the suffix beyond the old body's length in characters, not
// bytes, so multibyte text cannot shift the cut point. An edit that
// leaves the body the same length or shorter is treated as cleanup and
// yields no new text; this also keeps a truncate-then-retype edit from
// resurrecting a command at a shifted position.
func Diff(action, oldBody, newBody string) string {
	switch action {
	case ActionCreated:
		return newBody
	case ActionEdited:
		oldLen := utf8.RuneCountInString(oldBody)
		newRunes := []rune(newBody)
		if oldLen < len(newRunes) {
			return string(newRunes[oldLen:])
		}
		return ""
	default:
		return ""
	}
}
