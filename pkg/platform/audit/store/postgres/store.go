package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collecta/internal/platform/postgres"
	id "collecta/pkg/domain"
	audit "collecta/pkg/platform/audit"
)

// Store implements audit.Store over the audit_events table. Appends join the
// caller's transaction when one is in ctx.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var eventColumns = []string{
	"id", "category", "action", "timestamp", "unit_id", "category_id",
	"from_status", "to_status", "actor_id", "reason", "request_id",
}

// Append inserts an event. Re-inserting the same id is a no-op.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	var unit *uuid.UUID
	if !event.UnitID.IsNil() {
		u := uuid.UUID(event.UnitID)
		unit = &u
	}
	sql, args, err := postgres.Builder().
		Insert("audit_events").
		Columns(eventColumns...).
		Values(
			event.ID,
			string(event.Category),
			string(event.Action),
			event.Timestamp,
			unit,
			string(event.CategoryID),
			event.FromStatus,
			event.ToStatus,
			event.ActorID.String(),
			event.Reason,
			event.RequestID,
		).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event: %w", err)
	}
	if _, err := postgres.QuerierFromCtx(ctx, s.pool).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "insert audit event")
	}
	return nil
}

func (s *Store) ListByGroup(ctx context.Context, unit id.UnitID, category id.CategoryID) ([]audit.Event, error) {
	return s.list(ctx, s.selectEvents().Where(squirrel.Eq{
		"unit_id":     uuid.UUID(unit),
		"category_id": string(category),
	}))
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return s.list(ctx, s.selectEvents().Limit(uint64(max(limit, 0))))
}

func (s *Store) selectEvents() squirrel.SelectBuilder {
	return postgres.Builder().
		Select(eventColumns...).
		From("audit_events").
		OrderBy("timestamp DESC", "id")
}

func (s *Store) list(ctx context.Context, q squirrel.SelectBuilder) ([]audit.Event, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit events: %w", err)
	}
	rows, err := postgres.QuerierFromCtx(ctx, s.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err, "query audit events")
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "iterate audit events")
	}
	return events, nil
}

func scanEvent(row pgx.Row) (audit.Event, error) {
	var (
		event                               audit.Event
		category, action, categoryID, actor string
		unit                                *uuid.UUID
	)
	err := row.Scan(&event.ID, &category, &action, &event.Timestamp, &unit, &categoryID,
		&event.FromStatus, &event.ToStatus, &actor, &event.Reason, &event.RequestID)
	if err != nil {
		return audit.Event{}, fmt.Errorf("scan audit event: %w", err)
	}
	event.Category = audit.EventCategory(category)
	event.Action = audit.AuditEvent(action)
	event.CategoryID = id.CategoryID(categoryID)
	if unit != nil {
		event.UnitID = id.UnitID(*unit)
	}
	if actor != "" {
		parsed, err := uuid.Parse(actor)
		if err != nil {
			return audit.Event{}, fmt.Errorf("scan audit event actor: %w", err)
		}
		event.ActorID = id.ActorID(parsed)
	}
	return event, nil
}
