package members

import (
	"context"
	"errors"
	"net/mail"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ironledger/memberd/internal/domain"
	clockport "github.com/ironledger/memberd/internal/ports/out/clock"
	"github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

// Service is the mutation gateway. Every member-mutating operation goes
// through here so the optimistic-update / rollback / error-mapping pattern is
// implemented once, and every cache write is funneled through the coherence
// manager.
type Service struct {
	backend memberbackend.Client
	coh     *Coherence
	clk     clockport.Clock

	// seq numbers mutations in issuance order; the coherence manager uses it
	// to arbitrate racing mutations for the same member.
	seq atomic.Uint64

	// BulkConcurrency bounds the fan-out of bulk operations.
	BulkConcurrency int
}

func NewService(backend memberbackend.Client, coh *Coherence, clk clockport.Clock) *Service {
	return &Service{
		backend:         backend,
		coh:             coh,
		clk:             clk,
		BulkConcurrency: 8,
	}
}

// Coherence exposes the manager for collaborators that trigger invalidations
// (the realtime feed); they must never write the cache directly.
func (s *Service) Coherence() *Coherence { return s.coh }

// GetMember returns the enhanced member view, cache-first.
func (s *Service) GetMember(ctx context.Context, id domain.MemberID) (domain.Member, error) {
	if m, ok := s.coh.PeekDetail(ctx, id); ok {
		return m, nil
	}
	m, err := s.backend.Get(ctx, id)
	if err != nil {
		return domain.Member{}, mapBackendErr(err)
	}
	s.coh.StoreDetail(ctx, m)
	return m, nil
}

// ListMembers returns one page of the member list for the given UI state,
// cache-first by canonical query signature.
func (s *Service) ListMembers(ctx context.Context, f FilterState, sort SortState, page PageState) (memberbackend.Page, error) {
	q := BuildQuery(f, sort, page)
	key := q.Signature()
	if p, ok := s.coh.PeekList(ctx, key); ok {
		return memberbackend.Page{Members: p.Members, Total: p.Total}, nil
	}
	p, err := s.backend.List(ctx, q)
	if err != nil {
		return memberbackend.Page{}, mapBackendErr(err)
	}
	s.coh.StoreList(ctx, key, q, p)
	return p, nil
}

// DashboardStats is the aggregate view backing the dashboard counters.
type DashboardStats struct {
	Total    int
	ByStatus map[domain.Status]int
}

// Stats returns status counts and the total member count, cache-first.
func (s *Service) Stats(ctx context.Context) (DashboardStats, error) {
	out := DashboardStats{}
	counts, countsOK := s.coh.PeekStatusCounts(ctx)
	total, totalOK := s.coh.PeekTotal(ctx)
	if !countsOK {
		var err error
		counts, err = s.backend.StatusCounts(ctx)
		if err != nil {
			return out, mapBackendErr(err)
		}
		s.coh.StoreStatusCounts(ctx, counts)
	}
	if !totalOK {
		var err error
		total, err = s.backend.Count(ctx)
		if err != nil {
			return out, mapBackendErr(err)
		}
		s.coh.StoreTotal(ctx, total)
	}
	out.Total = total
	out.ByStatus = counts
	return out, nil
}

// Create persists a new member. The backend assigns identity; on success the
// newly created member becomes visible to subsequent list and count reads.
// Nothing is applied locally before the call, so failure needs no rollback.
func (s *Service) Create(ctx context.Context, in CreateMemberInput) (domain.Member, error) {
	m, err := s.buildCreate(ctx, in)
	if err != nil {
		return domain.Member{}, err
	}
	seq := s.seq.Add(1)
	created, err := s.backend.Create(ctx, m)
	if err != nil {
		return domain.Member{}, mapBackendErr(err)
	}
	s.coh.CommitCreate(ctx, seq, created)
	return created, nil
}

// Update applies a partial update. The optimistic patch is applied to every
// cached copy before the backend call resolves; on success the backend
// response wins, on failure the pre-mutation snapshot is restored.
func (s *Service) Update(ctx context.Context, id domain.MemberID, in UpdateMemberInput) (domain.Member, error) {
	current, err := s.currentMember(ctx, id)
	if err != nil {
		return domain.Member{}, err
	}
	patched, changed, err := s.applyPatch(ctx, current, in)
	if err != nil {
		return domain.Member{}, err
	}
	patched.UpdatedAt = s.clk.Now()

	seq := s.seq.Add(1)
	snap := s.coh.Snapshot(ctx, id)
	s.coh.ApplyOptimistic(ctx, seq, patched)

	after, err := s.backend.Update(ctx, patched)
	if err != nil {
		s.coh.Rollback(ctx, seq, snap)
		return domain.Member{}, mapBackendErr(err)
	}
	s.coh.CommitUpdate(ctx, seq, after, changed)
	return after, nil
}

// UpdateStatus transitions a member's lifecycle status. Illegal transitions
// fail locally without a backend call; transitions into suspended must be
// confirmed by the operator.
func (s *Service) UpdateStatus(ctx context.Context, id domain.MemberID, to domain.Status, confirmed bool) (domain.Member, error) {
	if !to.Valid() {
		return domain.Member{}, validationRejected("invalid status", map[string]any{"status": string(to)})
	}
	current, err := s.currentMember(ctx, id)
	if err != nil {
		return domain.Member{}, err
	}
	if err := checkTransition(current.Status, to, confirmed); err != nil {
		return domain.Member{}, err
	}

	patched := current
	patched.Status = to
	patched.UpdatedAt = s.clk.Now()

	seq := s.seq.Add(1)
	snap := s.coh.Snapshot(ctx, id)
	s.coh.ApplyOptimistic(ctx, seq, patched)

	after, err := s.backend.Update(ctx, patched)
	if err != nil {
		s.coh.Rollback(ctx, seq, snap)
		return domain.Member{}, mapBackendErr(err)
	}
	s.coh.CommitStatus(ctx, seq, after)
	return after, nil
}

// Delete removes a member permanently. No optimistic removal is applied; the
// cached views settle once the backend confirms.
func (s *Service) Delete(ctx context.Context, id domain.MemberID) error {
	current, err := s.currentMember(ctx, id)
	if err != nil {
		return err
	}
	seq := s.seq.Add(1)
	if err := s.backend.Delete(ctx, id); err != nil {
		return mapBackendErr(err)
	}
	s.coh.CommitDelete(ctx, seq, id, current.Status)
	return nil
}

// BulkUpdateStatus applies UpdateStatus semantics to each id concurrently and
// reports the per-id split once every item has settled. The operation is not
// atomic: partial failure is an expected outcome.
func (s *Service) BulkUpdateStatus(ctx context.Context, ids []domain.MemberID, to domain.Status, confirmed bool) (BulkOutcome, error) {
	if !to.Valid() {
		return BulkOutcome{}, validationRejected("invalid status", map[string]any{"status": string(to)})
	}
	if to == domain.StatusSuspended && !confirmed {
		return BulkOutcome{}, confirmationRequired("suspending members blocks facility access and must be confirmed")
	}

	type result struct {
		settle StatusSettle
		err    error
	}
	results := make([]result, len(ids))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.bulkConcurrency())
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id domain.MemberID) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			current, err := s.currentMember(ctx, id)
			if err != nil {
				results[i].err = err
				return
			}
			if !domain.CanTransition(current.Status, to) {
				results[i].err = validationRejected("status transition not allowed", map[string]any{
					"from": string(current.Status), "to": string(to),
				})
				return
			}
			patched := current
			patched.Status = to
			patched.UpdatedAt = s.clk.Now()
			seq := s.seq.Add(1)
			after, err := s.backend.Update(ctx, patched)
			if err != nil {
				results[i].err = mapBackendErr(err)
				return
			}
			results[i].settle = StatusSettle{Seq: seq, After: after}
		}(i, id)
	}
	wg.Wait()

	out := BulkOutcome{Errors: make(map[domain.MemberID]error)}
	settles := make([]StatusSettle, 0, len(ids))
	for i, id := range ids {
		if results[i].err != nil {
			out.Failed = append(out.Failed, id)
			out.Errors[id] = results[i].err
			continue
		}
		out.Succeeded = append(out.Succeeded, id)
		settles = append(settles, results[i].settle)
	}
	// Single coalesced invalidation batch for the succeeded subset.
	s.coh.CommitStatusBulk(ctx, settles)
	return out, nil
}

// BulkDelete deletes each id concurrently with the same partial-failure
// policy as BulkUpdateStatus. Already-deleted items are not compensated when
// a later item fails.
func (s *Service) BulkDelete(ctx context.Context, ids []domain.MemberID) (BulkOutcome, error) {
	type result struct {
		settle DeleteSettle
		err    error
	}
	results := make([]result, len(ids))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.bulkConcurrency())
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id domain.MemberID) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			current, err := s.currentMember(ctx, id)
			if err != nil {
				results[i].err = err
				return
			}
			seq := s.seq.Add(1)
			if err := s.backend.Delete(ctx, id); err != nil {
				results[i].err = mapBackendErr(err)
				return
			}
			results[i].settle = DeleteSettle{Seq: seq, ID: id, Status: current.Status}
		}(i, id)
	}
	wg.Wait()

	out := BulkOutcome{Errors: make(map[domain.MemberID]error)}
	settles := make([]DeleteSettle, 0, len(ids))
	for i, id := range ids {
		if results[i].err != nil {
			out.Failed = append(out.Failed, id)
			out.Errors[id] = results[i].err
			continue
		}
		out.Succeeded = append(out.Succeeded, id)
		settles = append(settles, results[i].settle)
	}
	s.coh.CommitDeleteBulk(ctx, settles)
	return out, nil
}

func (s *Service) bulkConcurrency() int {
	if s.BulkConcurrency > 0 {
		return s.BulkConcurrency
	}
	return 8
}

// currentMember reads the member's current state, preferring the cached copy.
func (s *Service) currentMember(ctx context.Context, id domain.MemberID) (domain.Member, error) {
	if m, ok := s.coh.PeekDetail(ctx, id); ok {
		return m, nil
	}
	m, err := s.backend.Get(ctx, id)
	if err != nil {
		return domain.Member{}, mapBackendErr(err)
	}
	return m, nil
}

func checkTransition(from, to domain.Status, confirmed bool) error {
	if !domain.CanTransition(from, to) {
		return validationRejected("status transition not allowed", map[string]any{
			"from": string(from), "to": string(to),
		})
	}
	if domain.RequiresConfirmation(from, to) && !confirmed {
		return confirmationRequired("suspending a member blocks facility access and must be confirmed")
	}
	return nil
}

func (s *Service) buildCreate(ctx context.Context, in CreateMemberInput) (domain.Member, error) {
	firstName := domain.NormalizeHumanName(in.FirstName)
	lastName := domain.NormalizeHumanName(in.LastName)
	if firstName == "" {
		return domain.Member{}, validationRejected("invalid firstName", map[string]any{"firstName": "must be non-empty"})
	}
	if lastName == "" {
		return domain.Member{}, validationRejected("invalid lastName", map[string]any{"lastName": "must be non-empty"})
	}
	if err := validateEmail(in.Email); err != nil {
		return domain.Member{}, validationRejected("invalid email", map[string]any{"email": err.Error()})
	}
	if !in.Gender.Valid() {
		return domain.Member{}, validationRejected("invalid gender", map[string]any{"gender": string(in.Gender)})
	}
	contact := in.PreferredContact
	if contact == "" {
		contact = domain.ContactEmail
	}
	if !contact.Valid() {
		return domain.Member{}, validationRejected("invalid preferredContact", map[string]any{"preferredContact": string(contact)})
	}
	if in.Status != "" && !in.Status.Valid() {
		return domain.Member{}, validationRejected("invalid status", map[string]any{"status": string(in.Status)})
	}

	m := domain.Member{
		FirstName:          firstName,
		LastName:           lastName,
		DateOfBirth:        in.DateOfBirth,
		Gender:             in.Gender,
		Email:              in.Email,
		Phone:              cloneStringPtr(in.Phone),
		PreferredContact:   contact,
		Address:            cloneAddress(in.Address),
		Status:             in.Status,
		JoinDate:           in.JoinDate,
		WaiverSigned:       in.WaiverSigned,
		WaiverSignedAt:     cloneTimePtr(in.WaiverSignedAt),
		MarketingConsent:   in.MarketingConsent,
		Notes:              cloneStringPtr(in.Notes),
		MedicalConditions:  cloneStringPtr(in.MedicalConditions),
		FitnessGoals:       cloneStringPtr(in.FitnessGoals),
		UniformSize:        cloneStringPtr(in.UniformSize),
		VestSize:           cloneStringPtr(in.VestSize),
		HipBeltSize:        cloneStringPtr(in.HipBeltSize),
		ReferralSource:     in.ReferralSource,
		ReferredByMemberID: in.ReferredByMemberID,
		TrainingPreference: cloneStringPtr(in.TrainingPreference),
	}
	// Training preference only applies to female members.
	if m.Gender != domain.GenderFemale {
		m.TrainingPreference = nil
	}
	if err := s.checkReferral(ctx, &m, ""); err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

// applyPatch produces the patched member plus the canonical names of changed
// sort/filter-relevant fields. Projections are never touched: only identity,
// status and contact fields are eligible for optimistic patching.
func (s *Service) applyPatch(ctx context.Context, current domain.Member, in UpdateMemberInput) (domain.Member, []string, error) {
	m := current

	if in.FirstName.IsSpecified() {
		if in.FirstName.IsNull() {
			return domain.Member{}, nil, validationRejected("invalid firstName", map[string]any{"firstName": "cannot be null"})
		}
		v := domain.NormalizeHumanName(in.FirstName.Value())
		if v == "" {
			return domain.Member{}, nil, validationRejected("invalid firstName", map[string]any{"firstName": "must be non-empty"})
		}
		m.FirstName = v
	}
	if in.LastName.IsSpecified() {
		if in.LastName.IsNull() {
			return domain.Member{}, nil, validationRejected("invalid lastName", map[string]any{"lastName": "cannot be null"})
		}
		v := domain.NormalizeHumanName(in.LastName.Value())
		if v == "" {
			return domain.Member{}, nil, validationRejected("invalid lastName", map[string]any{"lastName": "must be non-empty"})
		}
		m.LastName = v
	}
	if in.Email.IsSpecified() {
		if in.Email.IsNull() {
			return domain.Member{}, nil, validationRejected("invalid email", map[string]any{"email": "cannot be null"})
		}
		if err := validateEmail(in.Email.Value()); err != nil {
			return domain.Member{}, nil, validationRejected("invalid email", map[string]any{"email": err.Error()})
		}
		m.Email = in.Email.Value()
	}
	if in.DateOfBirth.IsSpecified() {
		if in.DateOfBirth.IsNull() {
			return domain.Member{}, nil, validationRejected("invalid dateOfBirth", map[string]any{"dateOfBirth": "cannot be null"})
		}
		m.DateOfBirth = in.DateOfBirth.Value()
	}
	if in.Gender.IsSpecified() {
		if in.Gender.IsNull() || !in.Gender.Value().Valid() {
			return domain.Member{}, nil, validationRejected("invalid gender", map[string]any{"gender": "must be male or female"})
		}
		m.Gender = in.Gender.Value()
	}
	if in.PreferredContact.IsSpecified() {
		if in.PreferredContact.IsNull() || !in.PreferredContact.Value().Valid() {
			return domain.Member{}, nil, validationRejected("invalid preferredContact", nil)
		}
		m.PreferredContact = in.PreferredContact.Value()
	}
	applyStringPtr(&m.Phone, in.Phone)
	if in.Address.IsSpecified() {
		if in.Address.IsNull() {
			m.Address = nil
		} else {
			m.Address = applyAddressPatch(m.Address, in.Address.Value())
		}
	}
	if in.JoinDate.IsSpecified() {
		if in.JoinDate.IsNull() {
			return domain.Member{}, nil, validationRejected("invalid joinDate", map[string]any{"joinDate": "cannot be null"})
		}
		m.JoinDate = in.JoinDate.Value()
	}
	if in.WaiverSigned.IsSpecified() {
		if in.WaiverSigned.IsNull() {
			return domain.Member{}, nil, validationRejected("invalid waiverSigned", map[string]any{"waiverSigned": "cannot be null"})
		}
		m.WaiverSigned = in.WaiverSigned.Value()
	}
	applyTimePtr(&m.WaiverSignedAt, in.WaiverSignedAt)
	if in.MarketingConsent.IsSpecified() {
		if in.MarketingConsent.IsNull() {
			return domain.Member{}, nil, validationRejected("invalid marketingConsent", map[string]any{"marketingConsent": "cannot be null"})
		}
		m.MarketingConsent = in.MarketingConsent.Value()
	}
	applyStringPtr(&m.Notes, in.Notes)
	applyStringPtr(&m.MedicalConditions, in.MedicalConditions)
	applyStringPtr(&m.FitnessGoals, in.FitnessGoals)
	applyStringPtr(&m.UniformSize, in.UniformSize)
	applyStringPtr(&m.UniformStatus, in.UniformStatus)
	applyStringPtr(&m.VestSize, in.VestSize)
	applyStringPtr(&m.HipBeltSize, in.HipBeltSize)

	if in.ReferralSource.IsSpecified() {
		if in.ReferralSource.IsNull() {
			m.ReferralSource = nil
		} else {
			v := in.ReferralSource.Value()
			m.ReferralSource = &v
		}
	}
	if in.ReferredByMemberID.IsSpecified() {
		if in.ReferredByMemberID.IsNull() {
			m.ReferredByMemberID = nil
		} else {
			v := in.ReferredByMemberID.Value()
			m.ReferredByMemberID = &v
		}
	}
	applyStringPtr(&m.TrainingPreference, in.TrainingPreference)

	// Training preference is cleared whenever gender moves away from female,
	// regardless of what the caller passed alongside.
	if m.Gender != domain.GenderFemale {
		m.TrainingPreference = nil
	}

	referralSpecified := in.ReferralSource.IsSpecified() || in.ReferredByMemberID.IsSpecified()
	if referralSpecified {
		if err := s.checkReferral(ctx, &m, m.ID); err != nil {
			return domain.Member{}, nil, err
		}
	}

	var changed []string
	if m.FirstName != current.FirstName || m.LastName != current.LastName {
		changed = append(changed, fieldName)
	}
	if m.Email != current.Email {
		changed = append(changed, fieldEmail)
	}
	if m.Gender != current.Gender {
		changed = append(changed, fieldGender)
	}
	if !m.JoinDate.Equal(current.JoinDate) {
		changed = append(changed, fieldJoinDate)
	}
	return m, changed, nil
}

// checkReferral enforces the member-referral invariants: a member referral
// must name an existing member other than the member itself, and a referrer
// makes no sense for other sources.
func (s *Service) checkReferral(ctx context.Context, m *domain.Member, self domain.MemberID) error {
	if m.ReferralSource == nil || *m.ReferralSource != domain.ReferralMemberReferral {
		m.ReferredByMemberID = nil
		return nil
	}
	if m.ReferredByMemberID == nil || *m.ReferredByMemberID == "" {
		return validationRejected("member referral requires a referring member", map[string]any{
			"referredByMemberId": "must be set when referralSource is member_referral",
		})
	}
	if self != "" && *m.ReferredByMemberID == self {
		return validationRejected("a member cannot refer themselves", map[string]any{
			"referredByMemberId": "must not equal the member's own id",
		})
	}
	if _, err := s.backend.Get(ctx, *m.ReferredByMemberID); err != nil {
		if errors.Is(err, memberbackend.ErrNotFound) {
			return validationRejected("referring member does not exist", map[string]any{
				"referredByMemberId": string(*m.ReferredByMemberID),
			})
		}
		return mapBackendErr(err)
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("must be non-empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return err
	}
	// Ensure no "Name <email@x>" format sneaks in.
	if addr.Address != email {
		return errors.New("must be a bare email address")
	}
	return nil
}

func applyStringPtr(dst **string, o Optional[string]) {
	if !o.IsSpecified() {
		return
	}
	if o.IsNull() {
		*dst = nil
		return
	}
	v := o.Value()
	*dst = &v
}

func applyTimePtr(dst **time.Time, o Optional[time.Time]) {
	if !o.IsSpecified() {
		return
	}
	if o.IsNull() {
		*dst = nil
		return
	}
	v := o.Value()
	*dst = &v
}

func applyAddressPatch(existing *domain.Address, patch AddressPatch) *domain.Address {
	cur := existing
	if cur == nil {
		cur = &domain.Address{}
	}
	out := *cur
	applyField := func(dst **string, o Optional[string]) {
		if !o.IsSpecified() {
			return
		}
		if o.IsNull() {
			*dst = nil
			return
		}
		v := o.Value()
		*dst = &v
	}
	applyField(&out.Street, patch.Street)
	applyField(&out.City, patch.City)
	applyField(&out.State, patch.State)
	applyField(&out.PostCode, patch.PostCode)
	applyField(&out.Country, patch.Country)
	return &out
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneAddress(a *domain.Address) *domain.Address {
	if a == nil {
		return nil
	}
	out := *a
	out.Street = cloneStringPtr(a.Street)
	out.City = cloneStringPtr(a.City)
	out.State = cloneStringPtr(a.State)
	out.PostCode = cloneStringPtr(a.PostCode)
	out.Country = cloneStringPtr(a.Country)
	return &out
}
