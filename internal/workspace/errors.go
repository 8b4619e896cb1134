package workspace

import "errors"

// Sentinel errors for the store's failure taxonomy. Callers match with
// errors.Is; front ends translate them into exit codes and HTTP statuses.
var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrWorkspaceExists   = errors.New("workspace already exists")
	ErrItemNotFound      = errors.New("work item not found")
	ErrItemExists        = errors.New("work item already exists")
	ErrInvalidUID        = errors.New("invalid uid")
	ErrInvalidSlug       = errors.New("invalid slug")
	ErrSerialization     = errors.New("serialization failed")
)
