package media

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/curaious/bizops/internal/listquery"
)

const assetColumns = `id, category, original_name, mime_type, size_bytes, path, uploaded_by, created_at`

type MediaRepo struct {
	db *sqlx.DB
}

func NewMediaRepo(db *sqlx.DB) *MediaRepo {
	return &MediaRepo{db: db}
}

func (r *MediaRepo) Insert(ctx context.Context, a *Asset) error {
	query := r.db.Rebind(`INSERT INTO media_assets (` + assetColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query, a.ID, a.Category, a.OriginalName, a.MimeType, a.SizeBytes, a.Path, a.UploadedBy, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record media asset: %w", err)
	}
	return nil
}

func (r *MediaRepo) List(ctx context.Context, f Filter, page listquery.Page) ([]Asset, int, error) {
	b := listquery.New().
		Eq("category", f.Category).
		OrderBy("created_at DESC", "id")

	assets := []Asset{}
	if err := b.Select(ctx, r.db, &assets, `SELECT `+assetColumns+` FROM media_assets`, page); err != nil {
		return nil, 0, fmt.Errorf("failed to list media: %w", err)
	}
	total, err := b.Count(ctx, r.db, "media_assets")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count media: %w", err)
	}
	return assets, total, nil
}
