package memberbackend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/ironledger/memberd/internal/adapters/postgres"
	"github.com/ironledger/memberd/internal/domain"
	"github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

// Backend is a Postgres implementation of memberbackend.Client, standing in
// for the hosted relational backend. Projections are computed server-side
// from the subscriptions, payments and training_sessions tables at read time.
type Backend struct {
	pool *pgxpool.Pool
}

func NewBackend(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool}
}

const memberColumns = `
	id, member_number, first_name, last_name, date_of_birth, gender,
	email, phone, preferred_contact,
	address_street, address_city, address_state, address_post_code, address_country,
	status, join_date, waiver_signed, waiver_signed_at, marketing_consent,
	notes, medical_conditions, fitness_goals,
	uniform_size, uniform_status, vest_size, hip_belt_size,
	referral_source, referred_by_member_id, training_preference,
	created_at, updated_at`

func (b *Backend) Get(ctx context.Context, id domain.MemberID) (domain.Member, error) {
	if b.pool == nil {
		return domain.Member{}, errors.New("nil postgres pool")
	}
	row := b.pool.QueryRow(ctx, `SELECT`+memberColumns+` FROM members WHERE id = $1`, string(id))
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Member{}, memberbackend.ErrNotFound
		}
		return domain.Member{}, err
	}
	proj, err := b.loadProjections(ctx, id)
	if err != nil {
		return domain.Member{}, err
	}
	m.Projections = proj
	return m, nil
}

func (b *Backend) List(ctx context.Context, q memberbackend.Query) (memberbackend.Page, error) {
	if b.pool == nil {
		return memberbackend.Page{}, errors.New("nil postgres pool")
	}

	where := []string{}
	args := []any{}
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.Status != "" {
		where = append(where, "status = "+param(string(q.Status)))
	}
	if q.Gender != "" {
		where = append(where, "gender = "+param(string(q.Gender)))
	}
	for _, token := range strings.Fields(strings.ToLower(q.Search)) {
		like := "%" + token + "%"
		where = append(where, `(
			lower(first_name || ' ' || last_name) LIKE `+param(like)+` OR
			lower(email) LIKE `+param(like)+` OR
			lower(member_number) LIKE `+param(like)+`
		)`)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := b.pool.QueryRow(ctx, `SELECT count(*) FROM members`+whereSQL, args...).Scan(&total); err != nil {
		return memberbackend.Page{}, err
	}

	orderSQL := " ORDER BY id"
	if col, ok := orderColumns[q.OrderBy]; ok {
		dir := "ASC"
		if strings.EqualFold(q.OrderDirection, "desc") {
			dir = "DESC"
		}
		orderSQL = fmt.Sprintf(" ORDER BY %s %s, id", col, dir)
	}
	pageSQL := orderSQL
	if q.Limit > 0 {
		pageSQL += " LIMIT " + param(q.Limit)
	}
	pageSQL += " OFFSET " + param(q.Offset)

	rows, err := b.pool.Query(ctx, `SELECT`+memberColumns+` FROM members`+whereSQL+pageSQL, args...)
	if err != nil {
		return memberbackend.Page{}, err
	}
	defer rows.Close()

	members := []domain.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return memberbackend.Page{}, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return memberbackend.Page{}, err
	}
	return memberbackend.Page{Members: members, Total: total}, nil
}

// orderColumns whitelists sortable columns; anything else is ignored.
var orderColumns = map[string]string{
	"name":          "lower(first_name || ' ' || last_name)",
	"email":         "lower(email)",
	"status":        "status",
	"join_date":     "join_date",
	"member_number": "member_number",
	"created_at":    "created_at",
}

func (b *Backend) StatusCounts(ctx context.Context) (map[domain.Status]int, error) {
	if b.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := b.pool.Query(ctx, `SELECT status, count(*) FROM members GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Status]int, len(domain.Statuses))
	for _, s := range domain.Statuses {
		out[s] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.Status(status)] = n
	}
	return out, rows.Err()
}

func (b *Backend) Count(ctx context.Context) (int, error) {
	if b.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	var n int
	err := b.pool.QueryRow(ctx, `SELECT count(*) FROM members`).Scan(&n)
	return n, err
}

func (b *Backend) Create(ctx context.Context, m domain.Member) (domain.Member, error) {
	if b.pool == nil {
		return domain.Member{}, errors.New("nil postgres pool")
	}
	var out domain.Member
	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO members (
				member_number,
				first_name, last_name, date_of_birth, gender,
				email, phone, preferred_contact,
				address_street, address_city, address_state, address_post_code, address_country,
				status, join_date, waiver_signed, waiver_signed_at, marketing_consent,
				notes, medical_conditions, fitness_goals,
				uniform_size, uniform_status, vest_size, hip_belt_size,
				referral_source, referred_by_member_id, training_preference
			) VALUES (
				'GM-' || lpad(nextval('member_number_seq')::text, 6, '0'),
				$1, $2, $3, $4,
				$5, $6, $7,
				$8, $9, $10, $11, $12,
				COALESCE(NULLIF($13, ''), 'pending'),
				COALESCE($14, now()), $15, $16, $17,
				$18, $19, $20,
				$21, $22, $23, $24,
				$25, $26, $27
			)
			RETURNING`+memberColumns,
			m.FirstName, m.LastName, m.DateOfBirth, string(m.Gender),
			m.Email, m.Phone, string(m.PreferredContact),
			addrField(m.Address, func(a domain.Address) *string { return a.Street }),
			addrField(m.Address, func(a domain.Address) *string { return a.City }),
			addrField(m.Address, func(a domain.Address) *string { return a.State }),
			addrField(m.Address, func(a domain.Address) *string { return a.PostCode }),
			addrField(m.Address, func(a domain.Address) *string { return a.Country }),
			string(m.Status), nullTime(m.JoinDate), m.WaiverSigned, m.WaiverSignedAt, m.MarketingConsent,
			m.Notes, m.MedicalConditions, m.FitnessGoals,
			m.UniformSize, m.UniformStatus, m.VestSize, m.HipBeltSize,
			referralSourceArg(m.ReferralSource), memberIDArg(m.ReferredByMemberID), m.TrainingPreference,
		)
		var err error
		out, err = scanMember(row)
		return err
	})
	if err != nil {
		return domain.Member{}, mapUniqueViolation(err)
	}
	return out, nil
}

func (b *Backend) Update(ctx context.Context, m domain.Member) (domain.Member, error) {
	if b.pool == nil {
		return domain.Member{}, errors.New("nil postgres pool")
	}
	var out domain.Member
	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE members SET
				first_name = $2, last_name = $3, date_of_birth = $4, gender = $5,
				email = $6, phone = $7, preferred_contact = $8,
				address_street = $9, address_city = $10, address_state = $11,
				address_post_code = $12, address_country = $13,
				status = $14, join_date = $15,
				waiver_signed = $16, waiver_signed_at = $17, marketing_consent = $18,
				notes = $19, medical_conditions = $20, fitness_goals = $21,
				uniform_size = $22, uniform_status = $23, vest_size = $24, hip_belt_size = $25,
				referral_source = $26, referred_by_member_id = $27, training_preference = $28,
				updated_at = now()
			WHERE id = $1
			RETURNING`+memberColumns,
			string(m.ID),
			m.FirstName, m.LastName, m.DateOfBirth, string(m.Gender),
			m.Email, m.Phone, string(m.PreferredContact),
			addrField(m.Address, func(a domain.Address) *string { return a.Street }),
			addrField(m.Address, func(a domain.Address) *string { return a.City }),
			addrField(m.Address, func(a domain.Address) *string { return a.State }),
			addrField(m.Address, func(a domain.Address) *string { return a.PostCode }),
			addrField(m.Address, func(a domain.Address) *string { return a.Country }),
			string(m.Status), m.JoinDate,
			m.WaiverSigned, m.WaiverSignedAt, m.MarketingConsent,
			m.Notes, m.MedicalConditions, m.FitnessGoals,
			m.UniformSize, m.UniformStatus, m.VestSize, m.HipBeltSize,
			referralSourceArg(m.ReferralSource), memberIDArg(m.ReferredByMemberID), m.TrainingPreference,
		)
		var err error
		out, err = scanMember(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Member{}, memberbackend.ErrNotFound
		}
		return domain.Member{}, mapUniqueViolation(err)
	}
	return out, nil
}

func (b *Backend) Delete(ctx context.Context, id domain.MemberID) error {
	if b.pool == nil {
		return errors.New("nil postgres pool")
	}
	ct, err := b.pool.Exec(ctx, `DELETE FROM members WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return memberbackend.ErrNotFound
	}
	return nil
}

// Changes is unsupported: the hosted backend's realtime feed is consumed via
// its client SDK, not through SQL. Dev/test realtime uses the memory backend.
func (b *Backend) Changes(ctx context.Context) (<-chan memberbackend.Change, error) {
	return nil, memberbackend.ErrChangeFeedUnsupported
}

func (b *Backend) loadProjections(ctx context.Context, id domain.MemberID) (*domain.EnhancedProjections, error) {
	out := &domain.EnhancedProjections{}
	found := false

	var sub domain.SubscriptionSnapshot
	err := b.pool.QueryRow(ctx, `
		SELECT plan_name, end_date, balance_due, remaining_sessions
		FROM subscriptions
		WHERE member_id = $1 AND status = 'active'
		ORDER BY end_date DESC
		LIMIT 1
	`, string(id)).Scan(&sub.PlanName, &sub.EndDate, &sub.BalanceDue, &sub.RemainingSessions)
	switch {
	case err == nil:
		out.ActiveSubscription = &sub
		found = true
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, err
	}

	stats := domain.SessionStats{}
	err = b.pool.QueryRow(ctx, `
		SELECT
			max(scheduled_at) FILTER (WHERE scheduled_at < now()),
			min(scheduled_at) FILTER (WHERE scheduled_at >= now()),
			count(*) FILTER (WHERE scheduled_at >= now() AND status = 'scheduled')
		FROM training_sessions
		WHERE member_id = $1
	`, string(id)).Scan(&stats.LastSessionAt, &stats.NextSessionAt, &stats.ScheduledCount)
	if err != nil {
		return nil, err
	}
	if stats.LastSessionAt != nil || stats.NextSessionAt != nil || stats.ScheduledCount > 0 {
		out.SessionStats = &stats
		found = true
	}

	err = b.pool.QueryRow(ctx, `
		SELECT max(paid_at) FROM payments WHERE member_id = $1
	`, string(id)).Scan(&out.LastPaymentDate)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if out.LastPaymentDate != nil {
		found = true
	}

	if !found {
		return nil, nil
	}
	return out, nil
}

func mapUniqueViolation(err error) error {
	if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
		switch pe.ConstraintName {
		case "members_email_key":
			return memberbackend.ErrEmailTaken
		case "members_member_number_key":
			return memberbackend.ErrMemberNumberTaken
		}
	}
	return err
}

func scanMember(row pgx.Row) (domain.Member, error) {
	var (
		m                              domain.Member
		id, memberNumber               string
		gender, contact, status        string
		street, city, state            *string
		postCode, country              *string
		referralSource                 *string
		referredBy                     *string
	)
	err := row.Scan(
		&id, &memberNumber, &m.FirstName, &m.LastName, &m.DateOfBirth, &gender,
		&m.Email, &m.Phone, &contact,
		&street, &city, &state, &postCode, &country,
		&status, &m.JoinDate, &m.WaiverSigned, &m.WaiverSignedAt, &m.MarketingConsent,
		&m.Notes, &m.MedicalConditions, &m.FitnessGoals,
		&m.UniformSize, &m.UniformStatus, &m.VestSize, &m.HipBeltSize,
		&referralSource, &referredBy, &m.TrainingPreference,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Member{}, err
	}
	m.ID = domain.MemberID(id)
	m.MemberNumber = domain.MemberNumber(memberNumber)
	m.Gender = domain.Gender(gender)
	m.PreferredContact = domain.ContactMethod(contact)
	m.Status = domain.Status(status)
	if street != nil || city != nil || state != nil || postCode != nil || country != nil {
		m.Address = &domain.Address{Street: street, City: city, State: state, PostCode: postCode, Country: country}
	}
	if referralSource != nil {
		v := domain.ReferralSource(*referralSource)
		m.ReferralSource = &v
	}
	if referredBy != nil {
		v := domain.MemberID(*referredBy)
		m.ReferredByMemberID = &v
	}
	return m, nil
}

func addrField(a *domain.Address, pick func(domain.Address) *string) *string {
	if a == nil {
		return nil
	}
	return pick(*a)
}

func referralSourceArg(r *domain.ReferralSource) *string {
	if r == nil {
		return nil
	}
	v := string(*r)
	return &v
}

func memberIDArg(id *domain.MemberID) *string {
	if id == nil {
		return nil
	}
	v := string(*id)
	return &v
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
