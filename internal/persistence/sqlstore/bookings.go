package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/uptrace/bun"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/persistence"
)

// CreateBooking implements persistence.BookingRepository.
func (s *Store) CreateBooking(ctx context.Context, booking domain.Booking) error {
	row, links, err := persistence.FromBooking(booking, s.timestamp())
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(ctx context.Context, db bun.IDB) error {
		if _, err := db.NewInsert().Model(&row).Exec(ctx); err != nil {
			return mapError(err)
		}
		if len(links) == 0 {
			return nil
		}
		_, err := db.NewInsert().Model(&links).Exec(ctx)
		return mapError(err)
	})
}

// GetBooking implements persistence.BookingRepository.
func (s *Store) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	var row persistence.Booking
	if err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Booking{}, mapError(err)
	}
	resources, err := s.bookingResources(ctx, []string{id})
	if err != nil {
		return domain.Booking{}, err
	}
	return row.Domain(resources[id])
}

// ListBookings implements persistence.BookingRepository.
func (s *Store) ListBookings(ctx context.Context, resourceID string, from, to time.Time) ([]domain.Booking, error) {
	var rows []persistence.Booking
	err := s.db.NewSelect().Model(&rows).
		Join("JOIN booking_resources AS br ON br.booking_id = b.id").
		Where("br.resource_id = ?", resourceID).
		Where("b.status = ?", string(domain.BookingStatusConfirmed)).
		Where("b.starts_at < ?", to.UTC()).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("b.series_ends_at IS NULL").WhereOr("b.series_ends_at > ?", from.UTC())
		}).
		OrderExpr("b.starts_at ASC, b.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	if len(rows) == 0 {
		return []domain.Booking{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	resources, err := s.bookingResources(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Booking, 0, len(rows))
	for _, row := range rows {
		b, err := row.Domain(resources[row.ID])
		if err != nil {
			return nil, errors.Wrapf(err, "sqlstore: booking %s", row.ID)
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) bookingResources(ctx context.Context, bookingIDs []string) (map[string][]string, error) {
	var links []persistence.BookingResource
	err := s.db.NewSelect().Model(&links).
		Where("booking_id IN (?)", bun.In(bookingIDs)).
		OrderExpr("booking_id ASC, position ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	out := make(map[string][]string, len(bookingIDs))
	for _, link := range links {
		out[link.BookingID] = append(out[link.BookingID], link.ResourceID)
	}
	return out, nil
}

// CancelBooking implements persistence.BookingRepository.
func (s *Store) CancelBooking(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.NewUpdate().Model((*persistence.Booking)(nil)).
		Set("status = ?", string(domain.BookingStatusCancelled)).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

// ----------------------------- Links ---------------------------------

// CreateLink implements persistence.LinkRepository.
func (s *Store) CreateLink(ctx context.Context, link domain.BookingLink) error {
	row := persistence.FromBookingLink(link, s.timestamp())
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	return mapError(err)
}

// GetLinkBySlug implements persistence.LinkRepository.
func (s *Store) GetLinkBySlug(ctx context.Context, slug string) (domain.BookingLink, error) {
	var row persistence.BookingLink
	if err := s.db.NewSelect().Model(&row).Where("slug = ?", slug).Scan(ctx); err != nil {
		return domain.BookingLink{}, mapError(err)
	}
	return row.Domain(), nil
}

// MarkLinkSpent implements persistence.LinkRepository. Only the first caller
// succeeds; the update is conditional on the link being unspent.
func (s *Store) MarkLinkSpent(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.NewUpdate().Model((*persistence.BookingLink)(nil)).
		Set("spent_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("spent_at IS NULL").
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	if affected, err := res.RowsAffected(); err != nil || affected > 0 {
		return err
	}
	exists, err := s.db.NewSelect().Model((*persistence.BookingLink)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return mapError(err)
	}
	if !exists {
		return persistence.ErrNotFound
	}
	return persistence.ErrLinkSpent
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
