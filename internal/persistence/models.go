package persistence

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/recurrence"
)

// seriesSlack covers the wall-clock drift between a UTC expansion and the
// resource zone the engine expands in.
const seriesSlack = 24 * time.Hour

// Resource is the stored form of a bookable resource.
type Resource struct {
	bun.BaseModel `bun:"table:resources,alias:r"`

	ID        string    `bun:"id,pk"`
	Kind      string    `bun:"kind,notnull"`
	Name      string    `bun:"name,notnull"`
	Timezone  string    `bun:"timezone,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// WorkingHours is one weekly opening window of a resource.
type WorkingHours struct {
	bun.BaseModel `bun:"table:working_hours,alias:wh"`

	ResourceID  string `bun:"resource_id,pk"`
	Weekday     int    `bun:"weekday,pk"`
	StartMinute int    `bun:"start_minute,pk"`
	EndMinute   int    `bun:"end_minute,notnull"`
}

// BlockedDate is a stored blackout span.
type BlockedDate struct {
	bun.BaseModel `bun:"table:blocked_dates,alias:bd"`

	ID         string    `bun:"id,pk"`
	ResourceID string    `bun:"resource_id,notnull"`
	StartsAt   time.Time `bun:"starts_at,notnull"`
	EndsAt     time.Time `bun:"ends_at,notnull"`
	Reason     string    `bun:"reason"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

// Booking is the stored form of a booking. RRule holds the recurrence in RFC
// 5545 form and SeriesEndsAt is an upper bound on the end of the last
// occurrence, nil when the series never ends.
type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID           string     `bun:"id,pk"`
	ServiceID    string     `bun:"service_id"`
	StartsAt     time.Time  `bun:"starts_at,notnull"`
	EndsAt       time.Time  `bun:"ends_at,notnull"`
	RRule        string     `bun:"rrule,nullzero"`
	SeriesEndsAt *time.Time `bun:"series_ends_at"`
	Status       string     `bun:"status,notnull"`
	LinkID       string     `bun:"link_id,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
}

// BookingResource joins a booking to each resource it reserves.
type BookingResource struct {
	bun.BaseModel `bun:"table:booking_resources,alias:br"`

	BookingID  string `bun:"booking_id,pk"`
	ResourceID string `bun:"resource_id,pk"`
	Position   int    `bun:"position,notnull"`
}

// BufferRule is a stored buffer rule. Durations are kept in seconds.
type BufferRule struct {
	bun.BaseModel `bun:"table:buffer_rules,alias:bu"`

	ID            string `bun:"id,pk"`
	ResourceID    string `bun:"resource_id,notnull"`
	ServiceID     string `bun:"service_id"`
	BeforeSeconds int64  `bun:"before_seconds,notnull"`
	AfterSeconds  int64  `bun:"after_seconds,notnull"`
	AppliesTo     string `bun:"applies_to,notnull"`
	Days          []int  `bun:"days"`
}

// BookingLink is a stored booking link.
type BookingLink struct {
	bun.BaseModel `bun:"table:booking_links,alias:bl"`

	ID              string     `bun:"id,pk"`
	Slug            string     `bun:"slug,notnull,unique"`
	ServiceID       string     `bun:"service_id"`
	ResourceIDs     []string   `bun:"resource_ids"`
	Type            string     `bun:"type,notnull"`
	DurationSeconds int64      `bun:"duration_seconds,notnull"`
	StepSeconds     int64      `bun:"step_seconds,notnull"`
	ExpiresAt       *time.Time `bun:"expires_at"`
	SpentAt         *time.Time `bun:"spent_at"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
}

// FromResource converts a domain resource into its rows.
func FromResource(r domain.Resource, now time.Time) (Resource, []WorkingHours) {
	hours := make([]WorkingHours, 0, len(r.WorkingHours))
	for _, wh := range r.WorkingHours {
		hours = append(hours, WorkingHours{
			ResourceID:  r.ID,
			Weekday:     int(wh.Weekday),
			StartMinute: int(wh.Start),
			EndMinute:   int(wh.End),
		})
	}
	return Resource{
		ID:        r.ID,
		Kind:      string(r.Kind),
		Name:      r.Name,
		Timezone:  r.Timezone,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, hours
}

// Domain converts the row and its working hours.
func (r Resource) Domain(hours []WorkingHours) domain.Resource {
	out := domain.Resource{
		ID:           r.ID,
		Kind:         domain.ResourceKind(r.Kind),
		Name:         r.Name,
		Timezone:     r.Timezone,
		WorkingHours: make([]domain.WorkingHours, 0, len(hours)),
	}
	for _, wh := range hours {
		out.WorkingHours = append(out.WorkingHours, domain.WorkingHours{
			Weekday: time.Weekday(wh.Weekday),
			Start:   domain.ClockTime(wh.StartMinute),
			End:     domain.ClockTime(wh.EndMinute),
		})
	}
	return out
}

// FromBlockedDate converts a domain blocked date.
func FromBlockedDate(b domain.BlockedDate, now time.Time) BlockedDate {
	return BlockedDate{
		ID:         b.ID,
		ResourceID: b.ResourceID,
		StartsAt:   b.Start.UTC(),
		EndsAt:     b.End.UTC(),
		Reason:     b.Reason,
		CreatedAt:  now.UTC(),
	}
}

// Domain converts the row.
func (b BlockedDate) Domain() domain.BlockedDate {
	return domain.BlockedDate{
		ID:         b.ID,
		ResourceID: b.ResourceID,
		Start:      b.StartsAt.UTC(),
		End:        b.EndsAt.UTC(),
		Reason:     b.Reason,
	}
}

// FromBooking converts a domain booking into its row and join rows.
func FromBooking(b domain.Booking, now time.Time) (Booking, []BookingResource, error) {
	row := Booking{
		ID:        b.ID,
		ServiceID: b.ServiceID,
		StartsAt:  b.Start.UTC(),
		EndsAt:    b.End.UTC(),
		Status:    string(b.Status),
		LinkID:    b.LinkID,
		CreatedAt: b.CreatedAt.UTC(),
		UpdatedAt: now.UTC(),
	}
	if row.Status == "" {
		row.Status = string(domain.BookingStatusConfirmed)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now.UTC()
	}
	if b.Recurrence != nil {
		value, err := recurrence.FormatRRule(*b.Recurrence)
		if err != nil {
			return Booking{}, nil, err
		}
		row.RRule = value
	}
	row.SeriesEndsAt = SeriesEnd(b)

	links := make([]BookingResource, 0, len(b.ResourceIDs))
	for i, id := range b.ResourceIDs {
		links = append(links, BookingResource{BookingID: b.ID, ResourceID: id, Position: i})
	}
	return row, links, nil
}

// Domain converts the row with the resources it reserves.
func (b Booking) Domain(resourceIDs []string) (domain.Booking, error) {
	out := domain.Booking{
		ID:          b.ID,
		ResourceIDs: resourceIDs,
		ServiceID:   b.ServiceID,
		Start:       b.StartsAt.UTC(),
		End:         b.EndsAt.UTC(),
		Status:      domain.BookingStatus(b.Status),
		LinkID:      b.LinkID,
		CreatedAt:   b.CreatedAt.UTC(),
	}
	if b.RRule != "" {
		rule, err := recurrence.ParseRRule(b.RRule)
		if err != nil {
			return domain.Booking{}, err
		}
		out.Recurrence = &rule
	}
	return out, nil
}

// SeriesEnd bounds the end of the last occurrence of a booking. It returns
// nil for series that run past the default horizon.
func SeriesEnd(b domain.Booking) *time.Time {
	end := b.End.UTC()
	if b.Recurrence == nil {
		return &end
	}
	rule := *b.Recurrence
	switch {
	case rule.Until != nil:
		bound := rule.Until.UTC().Add(b.Duration()).Add(seriesSlack)
		return &bound
	case rule.Count > 0:
		occurrences, err := recurrence.NewEngine().ExpandAll(rule, b.Start, b.Duration(), recurrence.Window{})
		if err != nil || len(occurrences) == 0 {
			return nil
		}
		bound := occurrences[len(occurrences)-1].End.UTC().Add(seriesSlack)
		return &bound
	default:
		return nil
	}
}

// FromBufferRule converts a domain buffer rule.
func FromBufferRule(r domain.BufferRule) BufferRule {
	days := make([]int, 0, len(r.Days))
	for _, d := range r.Days {
		days = append(days, int(d))
	}
	scope := r.AppliesTo
	if scope == "" {
		scope = domain.BufferScopeAll
	}
	return BufferRule{
		ID:            r.ID,
		ResourceID:    r.ResourceID,
		ServiceID:     r.ServiceID,
		BeforeSeconds: int64(r.Before / time.Second),
		AfterSeconds:  int64(r.After / time.Second),
		AppliesTo:     string(scope),
		Days:          days,
	}
}

// Domain converts the row.
func (r BufferRule) Domain() domain.BufferRule {
	out := domain.BufferRule{
		ID:         r.ID,
		ResourceID: r.ResourceID,
		ServiceID:  r.ServiceID,
		Before:     time.Duration(r.BeforeSeconds) * time.Second,
		After:      time.Duration(r.AfterSeconds) * time.Second,
		AppliesTo:  domain.BufferScope(r.AppliesTo),
	}
	for _, d := range r.Days {
		out.Days = append(out.Days, time.Weekday(d))
	}
	return out
}

// FromBookingLink converts a domain link.
func FromBookingLink(l domain.BookingLink, now time.Time) BookingLink {
	created := l.CreatedAt
	if created.IsZero() {
		created = now
	}
	return BookingLink{
		ID:              l.ID,
		Slug:            l.Slug,
		ServiceID:       l.ServiceID,
		ResourceIDs:     append([]string(nil), l.ResourceIDs...),
		Type:            string(l.Type),
		DurationSeconds: int64(l.Duration / time.Second),
		StepSeconds:     int64(l.Step / time.Second),
		ExpiresAt:       utcPtr(l.ExpiresAt),
		SpentAt:         utcPtr(l.SpentAt),
		CreatedAt:       created.UTC(),
	}
}

// Domain converts the row.
func (l BookingLink) Domain() domain.BookingLink {
	return domain.BookingLink{
		ID:          l.ID,
		Slug:        l.Slug,
		ServiceID:   l.ServiceID,
		ResourceIDs: append([]string(nil), l.ResourceIDs...),
		Type:        domain.LinkType(l.Type),
		Duration:    time.Duration(l.DurationSeconds) * time.Second,
		Step:        time.Duration(l.StepSeconds) * time.Second,
		ExpiresAt:   utcPtr(l.ExpiresAt),
		SpentAt:     utcPtr(l.SpentAt),
		CreatedAt:   l.CreatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
