package postgres

import (
	"context"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
)

// SubscriptionStore is the PostgreSQL ports.SubscriptionStore.
type SubscriptionStore struct {
	s *Store
}

func NewSubscriptionStore(s *Store) *SubscriptionStore {
	return &SubscriptionStore{s: s}
}

func (st *SubscriptionStore) Create(ctx context.Context, sub *domain.Subscription) error {
	const op = "create_subscription"
	tx, err := st.s.pool.Begin(ctx)
	if err != nil {
		return wrapErr(op, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO subscriptions (id, name, is_active, organisation_id, user_id)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))`,
		sub.ID, sub.Name, sub.IsActive, sub.OrganisationID, sub.UserID)
	if err != nil {
		return wrapErr(op, err)
	}
	for _, rt := range sub.ResourceTypes {
		_, err = tx.Exec(ctx,
			`INSERT INTO subscription_resource_types (subscription_id, resource_type_id)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			sub.ID, rt.ID)
		if err != nil {
			return wrapErr(op, err)
		}
	}
	return wrapErr(op, tx.Commit(ctx))
}

func (st *SubscriptionStore) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	const op = "get_subscription"
	var sub domain.Subscription
	var orgID, userID *string
	err := st.s.pool.QueryRow(ctx,
		`SELECT id, name, is_active, organisation_id, user_id
		 FROM subscriptions WHERE id = $1`, id).
		Scan(&sub.ID, &sub.Name, &sub.IsActive, &orgID, &userID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	if orgID != nil {
		sub.OrganisationID = *orgID
	}
	if userID != nil {
		sub.UserID = *userID
	}

	types, err := st.resourceTypesOf(ctx, id)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	sub.ResourceTypes = types
	return &sub, nil
}

func (st *SubscriptionStore) List(ctx context.Context) ([]*domain.Subscription, error) {
	const op = "list_subscriptions"
	rows, err := st.s.pool.Query(ctx,
		`SELECT id, name, is_active, organisation_id, user_id
		 FROM subscriptions ORDER BY name`)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var out []*domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		var orgID, userID *string
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.IsActive, &orgID, &userID); err != nil {
			return nil, wrapErr(op, err)
		}
		if orgID != nil {
			sub.OrganisationID = *orgID
		}
		if userID != nil {
			sub.UserID = *userID
		}
		out = append(out, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	for _, sub := range out {
		types, err := st.resourceTypesOf(ctx, sub.ID)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		sub.ResourceTypes = types
	}
	return out, nil
}

func (st *SubscriptionStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := st.s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return false, wrapErr("delete_subscription", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (st *SubscriptionStore) resourceTypesOf(ctx context.Context, subscriptionID string) ([]domain.ResourceType, error) {
	rows, err := st.s.pool.Query(ctx,
		`SELECT rt.id, rt.name, rt.tooltip
		 FROM resource_types rt
		 JOIN subscription_resource_types srt ON srt.resource_type_id = rt.id
		 WHERE srt.subscription_id = $1 ORDER BY rt.name`, subscriptionID)
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
