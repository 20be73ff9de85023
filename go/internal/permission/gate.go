// Package permission holds the pure authorization predicates layered over
// the otherwise permissionless replicated store. The gateway uses them to
// shape UI affordances and every mutating operation re-checks them, so a
// disabled control cannot be bypassed by direct invocation.
package permission

import "github.com/dhanucoding/retro-app/go/internal/models"

// CanEditItem reports whether the local user may edit or delete an item.
// Outside a session there are no restrictions. Items without an author
// predate authorship tracking and stay editable by anyone. The host is a
// superuser over all items.
func CanEditItem(item models.Item, userID string, connected, isHost bool) bool {
	if !connected {
		return true
	}
	if item.Author == nil {
		return true
	}
	if item.Author.UserID == userID {
		return true
	}
	return isHost
}

// CanControlTimer reports whether the local user may start, pause, or reset
// the shared timer.
func CanControlTimer(connected, isHost bool) bool {
	return !connected || isHost
}

// CanControlReveal reports whether the local user may change text
// visibility for the session.
func CanControlReveal(connected, isHost bool) bool {
	return !connected || isHost
}
