package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/ironledger/memberd/internal/app/members"
	"github.com/ironledger/memberd/internal/domain"
)

type addressDTO struct {
	Street   *string `json:"street,omitempty"`
	City     *string `json:"city,omitempty"`
	State    *string `json:"state,omitempty"`
	PostCode *string `json:"postCode,omitempty"`
	Country  *string `json:"country,omitempty"`
}

type subscriptionDTO struct {
	PlanName          string    `json:"planName"`
	EndDate           time.Time `json:"endDate"`
	BalanceDue        float64   `json:"balanceDue"`
	RemainingSessions int       `json:"remainingSessions"`
}

type sessionStatsDTO struct {
	LastSessionAt  *time.Time `json:"lastSessionAt,omitempty"`
	NextSessionAt  *time.Time `json:"nextSessionAt,omitempty"`
	ScheduledCount int        `json:"scheduledCount"`
}

type projectionsDTO struct {
	ActiveSubscription *subscriptionDTO `json:"activeSubscription,omitempty"`
	SessionStats       *sessionStatsDTO `json:"sessionStats,omitempty"`
	LastPaymentDate    *time.Time       `json:"lastPaymentDate,omitempty"`
}

type memberResponse struct {
	ID           string `json:"id"`
	MemberNumber string `json:"memberNumber"`

	FirstName   string             `json:"firstName"`
	LastName    string             `json:"lastName"`
	DateOfBirth openapi_types.Date `json:"dateOfBirth"`
	Gender      string             `json:"gender"`

	Email            openapi_types.Email `json:"email"`
	Phone            *string             `json:"phone,omitempty"`
	PreferredContact string              `json:"preferredContact"`
	Address          *addressDTO         `json:"address,omitempty"`

	Status   string    `json:"status"`
	JoinDate time.Time `json:"joinDate"`

	WaiverSigned     bool       `json:"waiverSigned"`
	WaiverSignedAt   *time.Time `json:"waiverSignedAt,omitempty"`
	MarketingConsent bool       `json:"marketingConsent"`

	Notes             *string `json:"notes,omitempty"`
	MedicalConditions *string `json:"medicalConditions,omitempty"`
	FitnessGoals      *string `json:"fitnessGoals,omitempty"`

	UniformSize   *string `json:"uniformSize,omitempty"`
	UniformStatus *string `json:"uniformStatus,omitempty"`
	VestSize      *string `json:"vestSize,omitempty"`
	HipBeltSize   *string `json:"hipBeltSize,omitempty"`

	ReferralSource     *string `json:"referralSource,omitempty"`
	ReferredByMemberID *string `json:"referredByMemberId,omitempty"`
	TrainingPreference *string `json:"trainingPreference,omitempty"`

	Projections *projectionsDTO `json:"projections,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toMemberResponse(m domain.Member) memberResponse {
	out := memberResponse{
		ID:                 string(m.ID),
		MemberNumber:       string(m.MemberNumber),
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		DateOfBirth:        openapi_types.Date{Time: m.DateOfBirth},
		Gender:             string(m.Gender),
		Email:              openapi_types.Email(m.Email),
		Phone:              m.Phone,
		PreferredContact:   string(m.PreferredContact),
		Status:             string(m.Status),
		JoinDate:           m.JoinDate,
		WaiverSigned:       m.WaiverSigned,
		WaiverSignedAt:     m.WaiverSignedAt,
		MarketingConsent:   m.MarketingConsent,
		Notes:              m.Notes,
		MedicalConditions:  m.MedicalConditions,
		FitnessGoals:       m.FitnessGoals,
		UniformSize:        m.UniformSize,
		UniformStatus:      m.UniformStatus,
		VestSize:           m.VestSize,
		HipBeltSize:        m.HipBeltSize,
		TrainingPreference: m.TrainingPreference,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	if m.Address != nil {
		out.Address = &addressDTO{
			Street:   m.Address.Street,
			City:     m.Address.City,
			State:    m.Address.State,
			PostCode: m.Address.PostCode,
			Country:  m.Address.Country,
		}
	}
	if m.ReferralSource != nil {
		v := string(*m.ReferralSource)
		out.ReferralSource = &v
	}
	if m.ReferredByMemberID != nil {
		v := string(*m.ReferredByMemberID)
		out.ReferredByMemberID = &v
	}
	if m.Projections != nil {
		p := &projectionsDTO{LastPaymentDate: m.Projections.LastPaymentDate}
		if s := m.Projections.ActiveSubscription; s != nil {
			p.ActiveSubscription = &subscriptionDTO{
				PlanName:          s.PlanName,
				EndDate:           s.EndDate,
				BalanceDue:        s.BalanceDue,
				RemainingSessions: s.RemainingSessions,
			}
		}
		if s := m.Projections.SessionStats; s != nil {
			p.SessionStats = &sessionStatsDTO{
				LastSessionAt:  s.LastSessionAt,
				NextSessionAt:  s.NextSessionAt,
				ScheduledCount: s.ScheduledCount,
			}
		}
		out.Projections = p
	}
	return out
}

type createMemberRequest struct {
	FirstName   string             `json:"firstName"`
	LastName    string             `json:"lastName"`
	DateOfBirth openapi_types.Date `json:"dateOfBirth"`
	Gender      string             `json:"gender"`

	Email            openapi_types.Email `json:"email"`
	Phone            *string             `json:"phone,omitempty"`
	PreferredContact string              `json:"preferredContact,omitempty"`
	Address          *addressDTO         `json:"address,omitempty"`

	Status   string     `json:"status,omitempty"`
	JoinDate *time.Time `json:"joinDate,omitempty"`

	WaiverSigned     bool       `json:"waiverSigned,omitempty"`
	WaiverSignedAt   *time.Time `json:"waiverSignedAt,omitempty"`
	MarketingConsent bool       `json:"marketingConsent,omitempty"`

	Notes             *string `json:"notes,omitempty"`
	MedicalConditions *string `json:"medicalConditions,omitempty"`
	FitnessGoals      *string `json:"fitnessGoals,omitempty"`

	UniformSize *string `json:"uniformSize,omitempty"`
	VestSize    *string `json:"vestSize,omitempty"`
	HipBeltSize *string `json:"hipBeltSize,omitempty"`

	ReferralSource     *string `json:"referralSource,omitempty"`
	ReferredByMemberID *string `json:"referredByMemberId,omitempty"`
	TrainingPreference *string `json:"trainingPreference,omitempty"`
}

func (req createMemberRequest) toInput() members.CreateMemberInput {
	in := members.CreateMemberInput{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		DateOfBirth:        req.DateOfBirth.Time,
		Gender:             domain.Gender(req.Gender),
		Email:              string(req.Email),
		Phone:              req.Phone,
		PreferredContact:   domain.ContactMethod(req.PreferredContact),
		Status:             domain.Status(req.Status),
		WaiverSigned:       req.WaiverSigned,
		WaiverSignedAt:     req.WaiverSignedAt,
		MarketingConsent:   req.MarketingConsent,
		Notes:              req.Notes,
		MedicalConditions:  req.MedicalConditions,
		FitnessGoals:       req.FitnessGoals,
		UniformSize:        req.UniformSize,
		VestSize:           req.VestSize,
		HipBeltSize:        req.HipBeltSize,
		TrainingPreference: req.TrainingPreference,
	}
	if req.JoinDate != nil {
		in.JoinDate = *req.JoinDate
	}
	if req.Address != nil {
		in.Address = &domain.Address{
			Street:   req.Address.Street,
			City:     req.Address.City,
			State:    req.Address.State,
			PostCode: req.Address.PostCode,
			Country:  req.Address.Country,
		}
	}
	if req.ReferralSource != nil {
		v := domain.ReferralSource(*req.ReferralSource)
		in.ReferralSource = &v
	}
	if req.ReferredByMemberID != nil {
		v := domain.MemberID(*req.ReferredByMemberID)
		in.ReferredByMemberID = &v
	}
	return in
}

type addressPatchDTO struct {
	Street   nullable.Nullable[string] `json:"street,omitempty"`
	City     nullable.Nullable[string] `json:"city,omitempty"`
	State    nullable.Nullable[string] `json:"state,omitempty"`
	PostCode nullable.Nullable[string] `json:"postCode,omitempty"`
	Country  nullable.Nullable[string] `json:"country,omitempty"`
}

// updateMemberRequest uses tri-state fields so PATCH can distinguish omitted,
// null and valued inputs. Status is absent on purpose: status changes go
// through the status endpoint.
type updateMemberRequest struct {
	FirstName   nullable.Nullable[string]             `json:"firstName,omitempty"`
	LastName    nullable.Nullable[string]             `json:"lastName,omitempty"`
	DateOfBirth nullable.Nullable[openapi_types.Date] `json:"dateOfBirth,omitempty"`
	Gender      nullable.Nullable[string]             `json:"gender,omitempty"`

	Email            nullable.Nullable[openapi_types.Email] `json:"email,omitempty"`
	Phone            nullable.Nullable[string]              `json:"phone,omitempty"`
	PreferredContact nullable.Nullable[string]              `json:"preferredContact,omitempty"`
	Address          nullable.Nullable[addressPatchDTO]     `json:"address,omitempty"`

	JoinDate nullable.Nullable[time.Time] `json:"joinDate,omitempty"`

	WaiverSigned     nullable.Nullable[bool]      `json:"waiverSigned,omitempty"`
	WaiverSignedAt   nullable.Nullable[time.Time] `json:"waiverSignedAt,omitempty"`
	MarketingConsent nullable.Nullable[bool]      `json:"marketingConsent,omitempty"`

	Notes             nullable.Nullable[string] `json:"notes,omitempty"`
	MedicalConditions nullable.Nullable[string] `json:"medicalConditions,omitempty"`
	FitnessGoals      nullable.Nullable[string] `json:"fitnessGoals,omitempty"`

	UniformSize   nullable.Nullable[string] `json:"uniformSize,omitempty"`
	UniformStatus nullable.Nullable[string] `json:"uniformStatus,omitempty"`
	VestSize      nullable.Nullable[string] `json:"vestSize,omitempty"`
	HipBeltSize   nullable.Nullable[string] `json:"hipBeltSize,omitempty"`

	ReferralSource     nullable.Nullable[string] `json:"referralSource,omitempty"`
	ReferredByMemberID nullable.Nullable[string] `json:"referredByMemberId,omitempty"`
	TrainingPreference nullable.Nullable[string] `json:"trainingPreference,omitempty"`
}

func (req updateMemberRequest) toInput() members.UpdateMemberInput {
	in := members.UpdateMemberInput{
		FirstName:          opt(req.FirstName),
		LastName:           opt(req.LastName),
		Phone:              opt(req.Phone),
		JoinDate:           opt(req.JoinDate),
		WaiverSigned:       opt(req.WaiverSigned),
		WaiverSignedAt:     opt(req.WaiverSignedAt),
		MarketingConsent:   opt(req.MarketingConsent),
		Notes:              opt(req.Notes),
		MedicalConditions:  opt(req.MedicalConditions),
		FitnessGoals:       opt(req.FitnessGoals),
		UniformSize:        opt(req.UniformSize),
		UniformStatus:      opt(req.UniformStatus),
		VestSize:           opt(req.VestSize),
		HipBeltSize:        opt(req.HipBeltSize),
		TrainingPreference: opt(req.TrainingPreference),
	}
	in.DateOfBirth = mapOpt(req.DateOfBirth, func(d openapi_types.Date) time.Time { return d.Time })
	in.Gender = mapOpt(req.Gender, func(s string) domain.Gender { return domain.Gender(s) })
	in.Email = mapOpt(req.Email, func(e openapi_types.Email) string { return string(e) })
	in.PreferredContact = mapOpt(req.PreferredContact, func(s string) domain.ContactMethod { return domain.ContactMethod(s) })
	in.ReferralSource = mapOpt(req.ReferralSource, func(s string) domain.ReferralSource { return domain.ReferralSource(s) })
	in.ReferredByMemberID = mapOpt(req.ReferredByMemberID, func(s string) domain.MemberID { return domain.MemberID(s) })
	in.Address = mapOpt(req.Address, func(a addressPatchDTO) members.AddressPatch {
		return members.AddressPatch{
			Street:   opt(a.Street),
			City:     opt(a.City),
			State:    opt(a.State),
			PostCode: opt(a.PostCode),
			Country:  opt(a.Country),
		}
	})
	return in
}

// opt converts the wire-level tri-state into the application Optional.
func opt[T any](n nullable.Nullable[T]) members.Optional[T] {
	if !n.IsSpecified() {
		return members.Unspecified[T]()
	}
	if n.IsNull() {
		return members.Null[T]()
	}
	return members.Some(n.MustGet())
}

func mapOpt[A, B any](n nullable.Nullable[A], f func(A) B) members.Optional[B] {
	if !n.IsSpecified() {
		return members.Unspecified[B]()
	}
	if n.IsNull() {
		return members.Null[B]()
	}
	return members.Some(f(n.MustGet()))
}

type updateStatusRequest struct {
	Status    string `json:"status"`
	Confirmed bool   `json:"confirmed,omitempty"`
}

type bulkStatusRequest struct {
	IDs       []string `json:"ids"`
	Status    string   `json:"status"`
	Confirmed bool     `json:"confirmed,omitempty"`
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type bulkResponse struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Message   string   `json:"message"`
}

type listMembersResponse struct {
	Members []memberResponse `json:"members"`
	Total   int              `json:"total"`
}

type statsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}
