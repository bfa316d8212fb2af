package postgres

import (
	"context"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
)

// ResourceStore is the PostgreSQL ports.ResourceStore.
type ResourceStore struct {
	s *Store
}

func NewResourceStore(s *Store) *ResourceStore {
	return &ResourceStore{s: s}
}

const resourceColumns = `id, collection_id, resource_type_id, name, file_name,
	file_type, file, metadata_file, markdown_content, callback_urls, status, error`

func (st *ResourceStore) Create(ctx context.Context, r *domain.Resource) error {
	_, err := st.s.pool.Exec(ctx,
		`INSERT INTO resources (`+resourceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.CollectionID, r.ResourceTypeID, r.Name, r.FileName,
		r.FileType, r.File, r.MetadataFile, r.MarkdownContent,
		r.CallbackURLs, string(r.Status), r.Error)
	return wrapErr("create_resource", err)
}

func (st *ResourceStore) Get(ctx context.Context, id string) (*domain.Resource, error) {
	var r domain.Resource
	var status string
	err := st.s.pool.QueryRow(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id).
		Scan(&r.ID, &r.CollectionID, &r.ResourceTypeID, &r.Name, &r.FileName,
			&r.FileType, &r.File, &r.MetadataFile, &r.MarkdownContent,
			&r.CallbackURLs, &status, &r.Error)
	if err != nil {
		return nil, wrapErr("get_resource", err)
	}
	r.Status = domain.ResourceStatus(status)
	return &r, nil
}

func (st *ResourceStore) ListForCollection(ctx context.Context, collectionID string) ([]*domain.Resource, error) {
	const op = "list_resources"
	rows, err := st.s.pool.Query(ctx,
		`SELECT `+resourceColumns+` FROM resources
		 WHERE collection_id = $1 ORDER BY file_name`, collectionID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var out []*domain.Resource
	for rows.Next() {
		var r domain.Resource
		var status string
		err := rows.Scan(&r.ID, &r.CollectionID, &r.ResourceTypeID, &r.Name, &r.FileName,
			&r.FileType, &r.File, &r.MetadataFile, &r.MarkdownContent,
			&r.CallbackURLs, &status, &r.Error)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		r.Status = domain.ResourceStatus(status)
		out = append(out, &r)
	}
	return out, wrapErr(op, rows.Err())
}

func (st *ResourceStore) CountForCollection(ctx context.Context, collectionID string) (int, error) {
	var n int
	err := st.s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM resources WHERE collection_id = $1`, collectionID).Scan(&n)
	if err != nil {
		return 0, wrapErr("count_resources", err)
	}
	return n, nil
}

func (st *ResourceStore) Update(ctx context.Context, r *domain.Resource) error {
	tag, err := st.s.pool.Exec(ctx,
		`UPDATE resources SET
			file_type = $2, file = $3, metadata_file = $4, markdown_content = $5,
			callback_urls = $6, status = $7, error = $8
		 WHERE id = $1`,
		r.ID, r.FileType, r.File, r.MetadataFile, r.MarkdownContent,
		r.CallbackURLs, string(r.Status), r.Error)
	if err != nil {
		return wrapErr("update_resource", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("update_resource", errNoRows())
	}
	return nil
}

func (st *ResourceStore) SetFileType(ctx context.Context, resourceID, fileType string) error {
	tag, err := st.s.pool.Exec(ctx,
		`UPDATE resources SET file_type = $2 WHERE id = $1`, resourceID, fileType)
	if err != nil {
		return wrapErr("set_file_type", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("set_file_type", errNoRows())
	}
	return nil
}

func (st *ResourceStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := st.s.pool.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return false, wrapErr("delete_resource", err)
	}
	return tag.RowsAffected() > 0, nil
}
