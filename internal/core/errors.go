package core

import "errors"

// Service-level sentinel errors. Each maps 1:1 onto a wire response code in
// the HTTP adapter, so handlers can switch on errors.Is without string
// matching.
var (
	ErrRoomNotFound = errors.New("core: room not found")
	ErrRoomDeleted  = errors.New("core: room deleted")
	ErrRoomExpired  = errors.New("core: room expired")
	ErrNotMember    = errors.New("core: caller is not a member of the room")
	ErrRoomFull     = errors.New("core: room at capacity")
	ErrBadRequest   = errors.New("core: malformed request")

	// ErrGuestIDExhausted reports that the allocator burned through its
	// collision budget. The ENTER path fails the operation instead of
	// proceeding with a degenerate empty id.
	ErrGuestIDExhausted = errors.New("core: guest id space exhausted")

	// ErrVersionConflict reports a concurrent update to the same room.
	// Mutations are retried against a fresh read.
	ErrVersionConflict = errors.New("core: room version conflict")
)
