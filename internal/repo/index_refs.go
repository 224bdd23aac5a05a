package repo

import (
	"context"
	"database/sql"
	"time"
)

// PutIndexRef remembers the knowledge-base resource id a record was uploaded as.
func (r Repo) PutIndexRef(ctx context.Context, kind, id, remoteID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO index_refs(entity_kind,entity_id,remote_id,uploaded_at) VALUES (?,?,?,?)
ON CONFLICT(entity_kind,entity_id) DO UPDATE SET remote_id=excluded.remote_id, uploaded_at=excluded.uploaded_at`,
		kind, id, remoteID, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (r Repo) GetIndexRef(ctx context.Context, kind, id string) (string, error) {
	var remote string
	err := r.DB.QueryRowContext(ctx, `SELECT remote_id FROM index_refs WHERE entity_kind=? AND entity_id=?`, kind, id).Scan(&remote)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return remote, err
}

func (r Repo) DeleteIndexRef(ctx context.Context, kind, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM index_refs WHERE entity_kind=? AND entity_id=?`, kind, id)
	return err
}
