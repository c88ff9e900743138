package memberbackend

import "errors"

var (
	// ErrNotFound indicates the requested member does not exist.
	ErrNotFound = errors.New("member not found")

	// ErrEmailTaken indicates another member already uses the email address.
	ErrEmailTaken = errors.New("member email already in use")

	// ErrMemberNumberTaken indicates a member-number collision on create.
	ErrMemberNumberTaken = errors.New("member number already in use")

	// ErrChangeFeedUnsupported indicates the backend has no realtime feed.
	ErrChangeFeedUnsupported = errors.New("change feed unsupported")
)
