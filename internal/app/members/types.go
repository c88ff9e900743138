package members

import (
	"time"

	"github.com/ironledger/memberd/internal/domain"
)

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

// AddressPatch updates individual address fields; unspecified fields keep
// their current value, null clears.
type AddressPatch struct {
	Street   Optional[string]
	City     Optional[string]
	State    Optional[string]
	PostCode Optional[string]
	Country  Optional[string]
}

// CreateMemberInput is the full member payload for create. Business-rule
// validation beyond the invariants the gateway owns (enums, referral wiring,
// training preference) is the form layer's job.
type CreateMemberInput struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Gender      domain.Gender

	Email            string
	Phone            *string
	PreferredContact domain.ContactMethod
	Address          *domain.Address

	// Status defaults to pending on the backend when empty.
	Status   domain.Status
	JoinDate time.Time

	WaiverSigned     bool
	WaiverSignedAt   *time.Time
	MarketingConsent bool

	Notes             *string
	MedicalConditions *string
	FitnessGoals      *string

	UniformSize *string
	VestSize    *string
	HipBeltSize *string

	ReferralSource     *domain.ReferralSource
	ReferredByMemberID *domain.MemberID
	TrainingPreference *string
}

// UpdateMemberInput is a partial update. Every field is tri-state; the
// gateway applies specified fields on top of the current member. Status is
// deliberately absent: status changes go through UpdateStatus so the
// transition policy is always consulted.
type UpdateMemberInput struct {
	FirstName   Optional[string] // cannot be null
	LastName    Optional[string] // cannot be null
	DateOfBirth Optional[time.Time]
	Gender      Optional[domain.Gender]

	Email            Optional[string] // cannot be null
	Phone            Optional[string]
	PreferredContact Optional[domain.ContactMethod]
	Address          Optional[AddressPatch]

	JoinDate Optional[time.Time]

	WaiverSigned     Optional[bool]
	WaiverSignedAt   Optional[time.Time]
	MarketingConsent Optional[bool]

	Notes             Optional[string]
	MedicalConditions Optional[string]
	FitnessGoals      Optional[string]

	UniformSize   Optional[string]
	UniformStatus Optional[string]
	VestSize      Optional[string]
	HipBeltSize   Optional[string]

	ReferralSource     Optional[domain.ReferralSource]
	ReferredByMemberID Optional[domain.MemberID]
	TrainingPreference Optional[string]
}

// BulkOutcome is the aggregate result of a bulk operation. It is a value, not
// an error: partial failure is an expected outcome and the caller needs the
// per-id split to report it accurately.
type BulkOutcome struct {
	Succeeded []domain.MemberID
	Failed    []domain.MemberID
	// Errors holds the failure reason per failed id.
	Errors map[domain.MemberID]error
}

// FullySucceeded reports whether every requested item succeeded.
func (o BulkOutcome) FullySucceeded() bool {
	return len(o.Failed) == 0
}
