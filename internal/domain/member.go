package domain

import "time"

// Gender drives conditional UI and the training-preference rule; it carries
// no other business meaning.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// ContactMethod is the member's preferred way to be reached.
type ContactMethod string

const (
	ContactEmail ContactMethod = "email"
	ContactPhone ContactMethod = "phone"
	ContactSMS   ContactMethod = "sms"
)

func (c ContactMethod) Valid() bool {
	switch c {
	case ContactEmail, ContactPhone, ContactSMS:
		return true
	}
	return false
}

// ReferralSource records how a member found the gym.
type ReferralSource string

const (
	ReferralWalkIn         ReferralSource = "walk_in"
	ReferralMemberReferral ReferralSource = "member_referral"
	ReferralOnline         ReferralSource = "online"
	ReferralPromotion      ReferralSource = "promotion"
	ReferralOther          ReferralSource = "other"
)

// Address is optional structured contact data. All fields are optional.
type Address struct {
	Street   *string
	City     *string
	State    *string
	PostCode *string
	Country  *string
}

// SubscriptionSnapshot is the backend-computed view of a member's active
// subscription. Read-only: the application never derives or patches it.
type SubscriptionSnapshot struct {
	PlanName          string
	EndDate           time.Time
	BalanceDue        float64
	RemainingSessions int
}

// SessionStats is the backend-computed training-session summary for a member.
type SessionStats struct {
	LastSessionAt  *time.Time
	NextSessionAt  *time.Time
	ScheduledCount int
}

// EnhancedProjections bundles the optional server-computed views attached to
// a member detail read. Nil means the backend did not compute them.
type EnhancedProjections struct {
	ActiveSubscription *SubscriptionSnapshot
	SessionStats       *SessionStats
	LastPaymentDate    *time.Time
}

// Member is the domain representation of a gym member.
type Member struct {
	ID           MemberID
	MemberNumber MemberNumber

	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Gender      Gender

	Email            string
	Phone            *string
	PreferredContact ContactMethod
	Address          *Address

	Status   Status
	JoinDate time.Time

	WaiverSigned     bool
	WaiverSignedAt   *time.Time
	MarketingConsent bool

	Notes             *string
	MedicalConditions *string
	FitnessGoals      *string

	UniformSize   *string
	UniformStatus *string
	VestSize      *string
	HipBeltSize   *string

	ReferralSource     *ReferralSource
	ReferredByMemberID *MemberID

	// TrainingPreference is only meaningful while Gender is female; it must be
	// cleared whenever gender changes away from female.
	TrainingPreference *string

	// Projections are read-only backend-computed views; never patched locally.
	Projections *EnhancedProjections

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName is the member's full name used in lists and search.
func (m Member) DisplayName() string {
	return NormalizeHumanName(m.FirstName + " " + m.LastName)
}
