package membership

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"collecta/internal/platform/postgres"
	id "collecta/pkg/domain"
)

// PostgresStore persists memberships in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed membership store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Add(ctx context.Context, m Membership) error {
	sql, args, err := postgres.Builder().
		Insert("unit_memberships").
		Columns("actor_id", "unit_id", "role", "contact").
		Values(uuid.UUID(m.ActorID), uuid.UUID(m.UnitID), string(m.Role), m.Contact).
		Suffix("ON CONFLICT (actor_id, unit_id, role) DO UPDATE SET contact = EXCLUDED.contact").
		ToSql()
	if err != nil {
		return fmt.Errorf("build add membership: %w", err)
	}
	if _, err := postgres.QuerierFromCtx(ctx, s.pool).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "add membership")
	}
	return nil
}

func (s *PostgresStore) HasRole(ctx context.Context, actor id.ActorID, unit id.UnitID, roles ...Role) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	sub := postgres.Builder().
		Select("1").
		From("unit_memberships").
		Where(squirrel.Eq{"actor_id": uuid.UUID(actor), "unit_id": uuid.UUID(unit), "role": names})
	sql, args, err := sub.Prefix("SELECT EXISTS (").Suffix(")").ToSql()
	if err != nil {
		return false, fmt.Errorf("build has role: %w", err)
	}
	var ok bool
	if err := postgres.QuerierFromCtx(ctx, s.pool).QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return false, postgres.MapError(err, "check membership")
	}
	return ok, nil
}

func (s *PostgresStore) ListByUnit(ctx context.Context, unit id.UnitID, role Role) ([]Membership, error) {
	return s.list(ctx, squirrel.Eq{"unit_id": uuid.UUID(unit), "role": string(role)})
}

func (s *PostgresStore) ListByRole(ctx context.Context, role Role) ([]Membership, error) {
	return s.list(ctx, squirrel.Eq{"role": string(role)})
}

func (s *PostgresStore) list(ctx context.Context, where squirrel.Eq) ([]Membership, error) {
	sql, args, err := postgres.Builder().
		Select("actor_id", "unit_id", "role", "contact").
		From("unit_memberships").
		Where(where).
		OrderBy("actor_id", "unit_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list memberships: %w", err)
	}
	rows, err := postgres.QuerierFromCtx(ctx, s.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err, "list memberships")
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var (
			actor, unit uuid.UUID
			role        string
			m           Membership
		)
		if err := rows.Scan(&actor, &unit, &role, &m.Contact); err != nil {
			return nil, postgres.MapError(err, "scan membership")
		}
		m.ActorID, m.UnitID, m.Role = id.ActorID(actor), id.UnitID(unit), Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "list memberships")
	}
	return out, nil
}
