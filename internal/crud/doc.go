/*
Package crud binds one HAL resource type to a list, a create form and an edit
session, and keeps writes safe with ETag/If-Match.

# State

A Client holds the loaded items, the search query, the create form and at most
one edit session, plus the loading flag and the status and debug lines a UI
shows. Snapshot returns a consistent copy. Changes delivers a signal after
every mutation; signals coalesce, so a slow reader sees the latest state once.

# Conditional writes

SaveEdit and Remove fetch the current representation of the target right
before writing and send its ETag in If-Match:

  - the target is gone: the user is alerted, the edit session is closed if it
    targets the same item, the list is refreshed and OutcomeGone is returned
  - the server answers 409 or 412: same recovery with the conflict message,
    OutcomeConflict
  - any other failure: the status line reads "<label> FAILED" and the error is
    returned with OutcomeFailed

Edits send PATCH and retry once with PUT when the server answers 405.

# Tracing

Every request sets the status line to its label while it runs, then to
"<label> OK" or "<label> FAILED" with the response or error in the debug line.
A Recorder, when configured, receives one history entry per request.
*/
package crud
