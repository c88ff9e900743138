package domain

// SubjectID is the authenticated subject extracted from JWT claims (typically "sub").
// We model it as an opaque identifier: its format is controlled by the hosted auth provider.
type SubjectID string

// MemberID is the backend-assigned identifier for a member record.
// Opaque, immutable after creation.
type MemberID string

// MemberNumber is the human-readable member identifier (e.g. "GM-000042").
// Assigned by the backend on create, unique, immutable after creation.
type MemberNumber string
