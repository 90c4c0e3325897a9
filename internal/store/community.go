package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"agora/internal/models"
)

// CommunityStore manages communities and their category references.
type CommunityStore struct {
	db *sql.DB
}

// NewCommunityStore returns a new CommunityStore.
func NewCommunityStore(db *sql.DB) *CommunityStore {
	return &CommunityStore{db: db}
}

const communityColumns = `id, name, description, visibility, posting_restrictions, category_id, created_at, updated_at`

func scanCommunity(scanner interface{ Scan(...any) error }) (*models.Community, error) {
	var c models.Community
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Description, &c.Visibility, &c.PostingRestrictions,
		&c.CategoryID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCategorizedCommunities returns every community with a non-null
// category_id.
func (s *CommunityStore) ListCategorizedCommunities(ctx context.Context) ([]models.Community, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+communityColumns+`
		FROM communities
		WHERE category_id IS NOT NULL
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list categorized communities: %w", err)
	}
	defer rows.Close()

	var items []models.Community
	for rows.Next() {
		c, err := scanCommunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan community: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// FindCommunity retrieves a community by ID. Returns nil if not found.
func (s *CommunityStore) FindCommunity(ctx context.Context, id uuid.UUID) (*models.Community, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+communityColumns+` FROM communities WHERE id = $1`, id)
	c, err := scanCommunity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find community by id: %w", err)
	}
	return c, nil
}

// CreateCommunity inserts a community and returns it.
func (s *CommunityStore) CreateCommunity(ctx context.Context, c *models.Community) (*models.Community, error) {
	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	visibility := c.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	posting := c.PostingRestrictions
	if posting == "" {
		posting = models.PostingAnyone
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO communities (id, name, description, visibility, posting_restrictions, category_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+communityColumns,
		id, c.Name, c.Description, visibility, posting, c.CategoryID,
	)
	result, err := scanCommunity(row)
	if err != nil {
		return nil, fmt.Errorf("create community: %w", err)
	}
	return result, nil
}

// SetCommunityCategory points a community at categoryID, or clears the
// reference when categoryID is nil.
func (s *CommunityStore) SetCommunityCategory(ctx context.Context, communityID uuid.UUID, categoryID *uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE communities SET category_id = $1, updated_at = NOW()
		WHERE id = $2
	`, categoryID, communityID)
	if err != nil {
		return fmt.Errorf("set community category: %w", err)
	}
	return nil
}
