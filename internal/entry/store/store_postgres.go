package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collecta/internal/entry/models"
	"collecta/internal/platform/postgres"
	id "collecta/pkg/domain"
)

const recordColumns = `unit_id, category_id, field_id, value, status,
	created_at, updated_at, submitted_at, approved_at, rejected_at,
	created_by, updated_by, approved_by, rejected_by, rejection_reason`

// PostgresStore persists entry records in PostgreSQL. Writes to one group are
// serialized with a transaction-scoped advisory lock so a value write and a
// status transition never interleave.
type PostgresStore struct {
	pool *pgxpool.Pool
	tx   *postgres.TxManager
}

// NewPostgres constructs a PostgreSQL-backed entry store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, tx: postgres.NewTxManager(pool)}
}

func (s *PostgresStore) Upsert(ctx context.Context, in models.UpsertInput) (*models.Group, error) {
	var group *models.Group
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := postgres.QuerierFromCtx(ctx, s.pool)
		if err := lockGroup(ctx, q, in.Key); err != nil {
			return err
		}
		status, err := currentStatus(ctx, q, in.Key)
		if err != nil {
			return err
		}
		if err := checkWritable(in.Key, status); err != nil {
			return err
		}
		if len(in.Values) > 0 {
			if err := upsertValues(ctx, q, in); err != nil {
				return err
			}
		}
		group, err = fetchGroup(ctx, q, in.Key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func upsertValues(ctx context.Context, q postgres.Querier, in models.UpsertInput) error {
	fields := make([]id.FieldID, 0, len(in.Values))
	for f := range in.Values {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	actor := uuid.UUID(in.Actor)
	insert := postgres.Builder().
		Insert("entry_records").
		Columns("unit_id", "category_id", "field_id", "value", "status",
			"created_at", "updated_at", "created_by", "updated_by")
	for _, f := range fields {
		insert = insert.Values(uuid.UUID(in.Key.UnitID), string(in.Key.CategoryID), string(f), in.Values[f],
			string(models.StatusDraft), in.Now, in.Now, actor, actor)
	}
	insert = insert.Suffix(`ON CONFLICT (unit_id, category_id, field_id) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by
		WHERE entry_records.value IS DISTINCT FROM EXCLUDED.value`)

	sql, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "upsert entry records")
	}
	return nil
}

func (s *PostgresStore) FetchGroup(ctx context.Context, key models.GroupKey) (*models.Group, error) {
	return fetchGroup(ctx, postgres.QuerierFromCtx(ctx, s.pool), key)
}

func (s *PostgresStore) ListPendingByCategory(ctx context.Context, categoryID id.CategoryID) ([]models.Record, error) {
	query := postgres.Builder().
		Select(recordColumns).
		From("entry_records").
		Where(squirrel.Eq{"category_id": string(categoryID), "status": string(models.StatusPending)}).
		OrderBy("unit_id", "field_id")
	return queryRecords(ctx, postgres.QuerierFromCtx(ctx, s.pool), query, "list pending records")
}

// TransitionGroup applies t in one conditional UPDATE. Records no longer in
// t.From are left alone, so a lost race reports zero rows.
func (s *PostgresStore) TransitionGroup(ctx context.Context, key models.GroupKey, t models.Transition) (int64, error) {
	update := postgres.Builder().
		Update("entry_records").
		Set("status", string(t.To)).
		Set("updated_at", t.At).
		Where(squirrel.Eq{
			"unit_id":     uuid.UUID(key.UnitID),
			"category_id": string(key.CategoryID),
			"status":      string(t.From),
		})
	switch t.To {
	case models.StatusPending:
		update = update.Set("submitted_at", t.At)
	case models.StatusApproved:
		update = update.Set("approved_at", t.At).Set("approved_by", actorParam(t.Actor))
	case models.StatusRejected:
		update = update.Set("rejected_at", t.At).
			Set("rejected_by", actorParam(t.Actor)).
			Set("rejection_reason", t.Reason)
	}
	sql, args, err := update.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build transition: %w", err)
	}

	var affected int64
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := postgres.QuerierFromCtx(ctx, s.pool)
		if err := lockGroup(ctx, q, key); err != nil {
			return err
		}
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return postgres.MapError(err, "transition group")
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

func lockGroup(ctx context.Context, q postgres.Querier, key models.GroupKey) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.String()); err != nil {
		return postgres.MapError(err, "lock group")
	}
	return nil
}

func currentStatus(ctx context.Context, q postgres.Querier, key models.GroupKey) (models.Status, error) {
	var status string
	err := q.QueryRow(ctx,
		`SELECT status FROM entry_records WHERE unit_id = $1 AND category_id = $2 LIMIT 1`,
		uuid.UUID(key.UnitID), string(key.CategoryID),
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StatusDraft, nil
	}
	if err != nil {
		return "", postgres.MapError(err, "read group status")
	}
	return models.Status(status), nil
}

func fetchGroup(ctx context.Context, q postgres.Querier, key models.GroupKey) (*models.Group, error) {
	query := postgres.Builder().
		Select(recordColumns).
		From("entry_records").
		Where(squirrel.Eq{"unit_id": uuid.UUID(key.UnitID), "category_id": string(key.CategoryID)}).
		OrderBy("field_id")
	records, err := queryRecords(ctx, q, query, "fetch group")
	if err != nil {
		return nil, err
	}
	return models.NewGroup(key, records), nil
}

func queryRecords(ctx context.Context, q postgres.Querier, query squirrel.SelectBuilder, op string) ([]models.Record, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err, op)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, postgres.MapError(err, op)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, op)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (models.Record, error) {
	var (
		rec                                 models.Record
		unitID, createdBy, updatedBy        uuid.UUID
		approvedBy, rejectedBy              *uuid.UUID
		categoryID, fieldID, status         string
		submittedAt, approvedAt, rejectedAt *time.Time
	)
	err := row.Scan(&unitID, &categoryID, &fieldID, &rec.Value, &status,
		&rec.CreatedAt, &rec.UpdatedAt, &submittedAt, &approvedAt, &rejectedAt,
		&createdBy, &updatedBy, &approvedBy, &rejectedBy, &rec.RejectionReason)
	if err != nil {
		return models.Record{}, err
	}
	rec.UnitID = id.UnitID(unitID)
	rec.CategoryID = id.CategoryID(categoryID)
	rec.FieldID = id.FieldID(fieldID)
	rec.Status = models.Status(status)
	rec.SubmittedAt, rec.ApprovedAt, rec.RejectedAt = submittedAt, approvedAt, rejectedAt
	rec.CreatedBy = id.ActorID(createdBy)
	rec.UpdatedBy = id.ActorID(updatedBy)
	rec.ApprovedBy = actorFromUUID(approvedBy)
	rec.RejectedBy = actorFromUUID(rejectedBy)
	return rec, nil
}

func actorParam(a *id.ActorID) *uuid.UUID {
	if a == nil {
		return nil
	}
	u := uuid.UUID(*a)
	return &u
}

func actorFromUUID(u *uuid.UUID) *id.ActorID {
	if u == nil {
		return nil
	}
	a := id.ActorID(*u)
	return &a
}
