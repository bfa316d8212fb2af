package postgres

import (
	"context"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
)

// CollectionStore is the PostgreSQL ports.CollectionStore. The
// (subscription_id, name) unique constraint surfaces as Conflict.
type CollectionStore struct {
	s *Store
}

func NewCollectionStore(s *Store) *CollectionStore {
	return &CollectionStore{s: s}
}

func (st *CollectionStore) Create(ctx context.Context, col *domain.Collection) error {
	const op = "create_collection"
	tx, err := st.s.pool.Begin(ctx)
	if err != nil {
		return wrapErr(op, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO collections (id, subscription_id, name, description)
		 VALUES ($1, $2, $3, $4)`,
		col.ID, col.SubscriptionID, col.Name, col.Description)
	if err != nil {
		return wrapErr(op, err)
	}
	for _, rt := range col.ResourceTypes {
		_, err = tx.Exec(ctx,
			`INSERT INTO collection_resource_types (collection_id, resource_type_id)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			col.ID, rt.ID)
		if err != nil {
			return wrapErr(op, err)
		}
	}
	return wrapErr(op, tx.Commit(ctx))
}

func (st *CollectionStore) Get(ctx context.Context, id string) (*domain.Collection, error) {
	return st.getWhere(ctx, "get_collection",
		`SELECT id, subscription_id, name, description FROM collections WHERE id = $1`, id)
}

func (st *CollectionStore) GetBySubscriptionAndName(ctx context.Context, subscriptionID, name string) (*domain.Collection, error) {
	return st.getWhere(ctx, "get_collection",
		`SELECT id, subscription_id, name, description
		 FROM collections WHERE subscription_id = $1 AND name = $2`, subscriptionID, name)
}

func (st *CollectionStore) getWhere(ctx context.Context, op, query string, args ...any) (*domain.Collection, error) {
	var col domain.Collection
	err := st.s.pool.QueryRow(ctx, query, args...).
		Scan(&col.ID, &col.SubscriptionID, &col.Name, &col.Description)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	types, err := st.resourceTypesOf(ctx, col.ID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	col.ResourceTypes = types
	return &col, nil
}

func (st *CollectionStore) ListForSubscription(ctx context.Context, subscriptionID string) ([]*domain.Collection, error) {
	const op = "list_collections"
	rows, err := st.s.pool.Query(ctx,
		`SELECT id, subscription_id, name, description
		 FROM collections WHERE subscription_id = $1 ORDER BY name`, subscriptionID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var out []*domain.Collection
	for rows.Next() {
		var col domain.Collection
		if err := rows.Scan(&col.ID, &col.SubscriptionID, &col.Name, &col.Description); err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, &col)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	for _, col := range out {
		types, err := st.resourceTypesOf(ctx, col.ID)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		col.ResourceTypes = types
	}
	return out, nil
}

func (st *CollectionStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := st.s.pool.Exec(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return false, wrapErr("delete_collection", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (st *CollectionStore) resourceTypesOf(ctx context.Context, collectionID string) ([]domain.ResourceType, error) {
	rows, err := st.s.pool.Query(ctx,
		`SELECT rt.id, rt.name, rt.tooltip
		 FROM resource_types rt
		 JOIN collection_resource_types crt ON crt.resource_type_id = rt.id
		 WHERE crt.collection_id = $1 ORDER BY rt.name`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []domain.ResourceType
	for rows.Next() {
		var rt domain.ResourceType
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.Tooltip); err != nil {
			return nil, err
		}
		types = append(types, rt)
	}
	return types, rows.Err()
}
