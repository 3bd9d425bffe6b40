package postgres

import (
	"context"
	"fmt"
	"time"

	"civicgpt/tax-advisor/types"
)

type DocumentRepository struct {
	db DBTX
}

func NewDocumentRepository(db DBTX) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]types.Document, error) {
	query := `SELECT id, user_id, name, url, size, status, uploaded_at FROM documents
		WHERE user_id = $1
		ORDER BY uploaded_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}
	defer rows.Close()

	result := []types.Document{}
	for rows.Next() {
		var (
			doc        types.Document
			uploadedAt time.Time
		)
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Name, &doc.URL, &doc.Size, &doc.Status, &uploadedAt); err != nil {
			return nil, err
		}
		doc.UploadedAt = &uploadedAt
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
