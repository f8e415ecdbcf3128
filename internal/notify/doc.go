// Package notify keeps the live notification feed of one Liman user.
//
// A Center ties together the pieces of the pipeline:
//
//   - UnreadStore holds the session's unread notifications, most recent first.
//   - SeenMarker acknowledges notifications to the server after a short
//     debounce, at most once per id.
//   - Listener subscribes to the user's private channel and hands every
//     pushed notification to the Center.
//   - Session carries the credentials and runs teardown hooks on logout,
//     token change or expiry.
//
// Push events that arrive before the initial unread fetch resolves are
// buffered and applied after the fetch result, in arrival order. The store
// ignores ids it already holds, so a notification delivered by both the
// fetch and the push channel appears once.
package notify
