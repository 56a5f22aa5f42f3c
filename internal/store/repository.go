// Package store persists project state, preferences, asset blobs, and
// export records in SQLite.
package store

import (
	"context"
	"database/sql"
	"time"
)

// Keys used in the project_state table.
const (
	StateKeyTimeline = "timeline"
	StateKeyProject  = "project"
)

type AssetBlob struct {
	AssetID   string    `json:"asset_id"`
	Filename  string    `json:"filename"`
	MediaType string    `json:"media_type"`
	Size      int64     `json:"size"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type ExportRecord struct {
	ID         string    `json:"id"`
	Stage      string    `json:"stage"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Repository interface {
	SaveState(ctx context.Context, key, value string) error
	LoadState(ctx context.Context, key string) (string, error)

	SetPref(ctx context.Context, key, value string) error
	GetPref(ctx context.Context, key string) (string, error)

	PutBlob(ctx context.Context, blob *AssetBlob) error
	GetBlob(ctx context.Context, assetID string) (*AssetBlob, error)
	GetBlobMeta(ctx context.Context, assetID string) (*AssetBlob, error)
	DeleteBlob(ctx context.Context, assetID string) error
	ListBlobMeta(ctx context.Context) ([]*AssetBlob, error)

	CreateExport(ctx context.Context, rec *ExportRecord) error
	GetExport(ctx context.Context, id string) (*ExportRecord, error)
	UpdateExport(ctx context.Context, rec *ExportRecord) error
	ListExports(ctx context.Context, limit int) ([]*ExportRecord, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SaveState(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO project_state (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, value)
	return err
}

func (r *SQLiteRepository) LoadState(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM project_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetPref(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prefs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (r *SQLiteRepository) GetPref(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM prefs WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) PutBlob(ctx context.Context, b *AssetBlob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO asset_blobs (asset_id, filename, media_type, size, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			filename = excluded.filename,
			media_type = excluded.media_type,
			size = excluded.size,
			data = excluded.data
	`, b.AssetID, b.Filename, b.MediaType, b.Size, b.Data, b.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetBlob(ctx context.Context, assetID string) (*AssetBlob, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT asset_id, filename, media_type, size, data, created_at
		FROM asset_blobs WHERE asset_id = ?
	`, assetID)

	var b AssetBlob
	var createdAt string
	err := row.Scan(&b.AssetID, &b.Filename, &b.MediaType, &b.Size, &b.Data, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &b, nil
}

func (r *SQLiteRepository) GetBlobMeta(ctx context.Context, assetID string) (*AssetBlob, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT asset_id, filename, media_type, size, created_at
		FROM asset_blobs WHERE asset_id = ?
	`, assetID)

	var b AssetBlob
	var createdAt string
	err := row.Scan(&b.AssetID, &b.Filename, &b.MediaType, &b.Size, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &b, nil
}

func (r *SQLiteRepository) DeleteBlob(ctx context.Context, assetID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM asset_blobs WHERE asset_id = ?", assetID)
	return err
}

func (r *SQLiteRepository) ListBlobMeta(ctx context.Context) ([]*AssetBlob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT asset_id, filename, media_type, size, created_at
		FROM asset_blobs ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blobs []*AssetBlob
	for rows.Next() {
		var b AssetBlob
		var createdAt string
		if err := rows.Scan(&b.AssetID, &b.Filename, &b.MediaType, &b.Size, &createdAt); err != nil {
			return nil, err
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		blobs = append(blobs, &b)
	}
	return blobs, rows.Err()
}

func (r *SQLiteRepository) CreateExport(ctx context.Context, rec *ExportRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exports (id, stage, progress, message, error, output_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Stage, rec.Progress, rec.Message, rec.Error, rec.OutputPath,
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetExport(ctx context.Context, id string) (*ExportRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, stage, progress, message, error, output_path, created_at, updated_at
		FROM exports WHERE id = ?
	`, id)
	return scanExport(row)
}

func (r *SQLiteRepository) UpdateExport(ctx context.Context, rec *ExportRecord) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE exports SET stage = ?, progress = ?, message = ?, error = ?, output_path = ?, updated_at = datetime('now')
		WHERE id = ?
	`, rec.Stage, rec.Progress, rec.Message, rec.Error, rec.OutputPath, rec.ID)
	return err
}

func (r *SQLiteRepository) ListExports(ctx context.Context, limit int) ([]*ExportRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, stage, progress, message, error, output_path, created_at, updated_at
		FROM exports ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*ExportRecord
	for rows.Next() {
		var rec ExportRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&rec.ID, &rec.Stage, &rec.Progress, &rec.Message, &rec.Error,
			&rec.OutputPath, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExport(row rowScanner) (*ExportRecord, error) {
	var rec ExportRecord
	var createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.Stage, &rec.Progress, &rec.Message, &rec.Error,
		&rec.OutputPath, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}
