package postgres

import (
	"context"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
)

// ResourceTypeStore is the PostgreSQL ports.ResourceTypeStore.
type ResourceTypeStore struct {
	s *Store
}

func NewResourceTypeStore(s *Store) *ResourceTypeStore {
	return &ResourceTypeStore{s: s}
}

func (st *ResourceTypeStore) Create(ctx context.Context, rt *domain.ResourceType) error {
	_, err := st.s.pool.Exec(ctx,
		`INSERT INTO resource_types (id, name, tooltip) VALUES ($1, $2, $3)`,
		rt.ID, rt.Name, rt.Tooltip)
	return wrapErr("create_resource_type", err)
}

func (st *ResourceTypeStore) Get(ctx context.Context, id string) (*domain.ResourceType, error) {
	var rt domain.ResourceType
	err := st.s.pool.QueryRow(ctx,
		`SELECT id, name, tooltip FROM resource_types WHERE id = $1`, id).
		Scan(&rt.ID, &rt.Name, &rt.Tooltip)
	if err != nil {
		return nil, wrapErr("get_resource_type", err)
	}
	return &rt, nil
}

func (st *ResourceTypeStore) List(ctx context.Context) ([]*domain.ResourceType, error) {
	const op = "list_resource_types"
	rows, err := st.s.pool.Query(ctx,
		`SELECT id, name, tooltip FROM resource_types ORDER BY name`)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var out []*domain.ResourceType
	for rows.Next() {
		var rt domain.ResourceType
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.Tooltip); err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, &rt)
	}
	return out, wrapErr(op, rows.Err())
}
