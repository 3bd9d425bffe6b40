package supabase

import (
	"context"
	"encoding/json"
	"fmt"

	"civicgpt/tax-advisor/types"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

const documentsTable = "documents"

type DocumentRepository struct {
	client *supabase.Client
}

func NewDocumentRepository(client *supabase.Client) *DocumentRepository {
	return &DocumentRepository{client: client}
}

func (r *DocumentRepository) ListByUser(_ context.Context, userID string, limit int) ([]types.Document, error) {
	resp, _, err := r.client.From(documentsTable).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("uploaded_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch documents: %w", err)
	}

	docs := []types.Document{}
	if err := json.Unmarshal(resp, &docs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal documents: %w", err)
	}
	return docs, nil
}
