package postgrest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"agora/internal/models"
	"agora/internal/resilience"
)

const (
	tableCategories          = "categories"
	tableCommunityCategories = "community_categories"
	tableCommunities         = "communities"
	tableDeletedCategories   = "deleted_categories"

	returnRepresentation = "return=representation"
)

// list fetches rows from table and validates every one of them.
func list[T any](ctx context.Context, c *Client, table string, q url.Values) ([]T, error) {
	var rows []T
	if err := c.do(ctx, request{method: http.MethodGet, table: table, query: q}, &rows); err != nil {
		return nil, err
	}
	if err := models.ValidateAll(rows); err != nil {
		return nil, fmt.Errorf("postgrest %s: %w", table, err)
	}
	return rows, nil
}

// one fetches at most one row; nil when nothing matched.
func one[T any](ctx context.Context, c *Client, table string, q url.Values) (*T, error) {
	q.Set("limit", "1")
	rows, err := list[T](ctx, c, table, q)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// insert writes body and returns the stored row.
func insert[T any](ctx context.Context, c *Client, table string, body any) (*T, error) {
	var rows []T
	r := request{method: http.MethodPost, table: table, body: body, prefer: returnRepresentation}
	if err := c.do(ctx, r, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("postgrest insert %s: empty representation", table)
	}
	if err := models.Validate(&rows[0]); err != nil {
		return nil, fmt.Errorf("postgrest %s: %w", table, err)
	}
	return &rows[0], nil
}

// communityCategoryRow is the insert payload; timestamps are server-set.
type communityCategoryRow struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	OrderIndex int       `json:"order_index"`
}

type deletedCategoryRow struct {
	OriginalID uuid.UUID  `json:"original_id"`
	Name       string     `json:"name"`
	Slug       string     `json:"slug"`
	OrderIndex int        `json:"order_index"`
	DeletedBy  *uuid.UUID `json:"deleted_by"`
}

type communityRow struct {
	ID                  uuid.UUID                 `json:"id"`
	Name                string                    `json:"name"`
	Description         string                    `json:"description"`
	Visibility          models.Visibility         `json:"visibility"`
	PostingRestrictions models.PostingRestriction `json:"posting_restrictions"`
	CategoryID          *uuid.UUID                `json:"category_id"`
}

// ListCategories returns every legacy category ordered by name.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	return list[models.Category](ctx, c, tableCategories, url.Values{"select": {"*"}, "order": {"name"}})
}

// ListCommunityCategories returns all community categories in display order.
func (c *Client) ListCommunityCategories(ctx context.Context) ([]models.CommunityCategory, error) {
	q := url.Values{"select": {"*"}, "order": {"order_index.asc,name.asc"}}
	return list[models.CommunityCategory](ctx, c, tableCommunityCategories, q)
}

// FindCommunityCategory retrieves a community category by ID. Returns nil if not found.
func (c *Client) FindCommunityCategory(ctx context.Context, id uuid.UUID) (*models.CommunityCategory, error) {
	q := url.Values{"select": {"*"}, "id": {eq(id)}}
	return one[models.CommunityCategory](ctx, c, tableCommunityCategories, q)
}

// CreateCommunityCategory inserts a community category and returns it.
func (c *Client) CreateCommunityCategory(ctx context.Context, cc *models.CommunityCategory) (*models.CommunityCategory, error) {
	id := cc.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row := communityCategoryRow{ID: id, Name: cc.Name, Slug: cc.Slug, OrderIndex: cc.OrderIndex}
	return insert[models.CommunityCategory](ctx, c, tableCommunityCategories, row)
}

// UpdateCommunityCategory modifies name, slug and order. Returns false if
// no row matched.
func (c *Client) UpdateCommunityCategory(ctx context.Context, cc *models.CommunityCategory) (bool, error) {
	var rows []models.CommunityCategory
	r := request{
		method: http.MethodPatch,
		table:  tableCommunityCategories,
		query:  url.Values{"id": {eq(cc.ID)}},
		body:   map[string]any{"name": cc.Name, "slug": cc.Slug, "order_index": cc.OrderIndex},
		prefer: returnRepresentation,
	}
	if err := c.do(ctx, r, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ReorderCommunityCategories patches order_index row by row. The REST API
// has no multi-row transaction; a failure leaves earlier rows updated.
func (c *Client) ReorderCommunityCategories(ctx context.Context, items []models.ReorderItem) error {
	for _, item := range items {
		r := request{
			method: http.MethodPatch,
			table:  tableCommunityCategories,
			query:  url.Values{"id": {eq(item.ID)}},
			body:   map[string]any{"order_index": item.OrderIndex},
		}
		if err := c.do(ctx, r, nil); err != nil {
			return fmt.Errorf("reorder community category %s: %w", item.ID, err)
		}
	}
	return nil
}

// NextOrderIndex returns max(order_index)+1, or 0 for an empty table.
func (c *Client) NextOrderIndex(ctx context.Context) (int, error) {
	var rows []struct {
		OrderIndex int `json:"order_index"`
	}
	q := url.Values{"select": {"order_index"}, "order": {"order_index.desc"}, "limit": {"1"}}
	if err := c.do(ctx, request{method: http.MethodGet, table: tableCommunityCategories, query: q}, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].OrderIndex + 1, nil
}

// SoftDeleteCommunityCategory writes the audit row, clears community
// references and deletes the category. Returns nil if it does not exist.
//
// Each step can be repeated: an audit row left by an earlier attempt that
// failed before the category was deleted is reused instead of written
// again.
func (c *Client) SoftDeleteCommunityCategory(ctx context.Context, id uuid.UUID, deletedBy *uuid.UUID) (*models.DeletedCategory, error) {
	cc, err := c.FindCommunityCategory(ctx, id)
	if err != nil || cc == nil {
		return nil, err
	}

	deleted, err := c.pendingDeletedCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		deleted, err = insert[models.DeletedCategory](ctx, c, tableDeletedCategories, deletedCategoryRow{
			OriginalID: cc.ID,
			Name:       cc.Name,
			Slug:       cc.Slug,
			OrderIndex: cc.OrderIndex,
			DeletedBy:  deletedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("record deleted category: %w", err)
		}
	}

	if err := c.detachCommunities(ctx, id); err != nil {
		return nil, err
	}
	if err := c.deleteByID(ctx, tableCommunityCategories, id); err != nil {
		return nil, fmt.Errorf("soft delete community category: %w", err)
	}
	return deleted, nil
}

// pendingDeletedCategory returns the newest audit row for a category that
// still exists. Restore removes the audit row, so such a row can only come
// from an unfinished soft delete.
func (c *Client) pendingDeletedCategory(ctx context.Context, originalID uuid.UUID) (*models.DeletedCategory, error) {
	q := url.Values{"select": {"*"}, "original_id": {eq(originalID)}, "order": {"deleted_at.desc"}}
	d, err := one[models.DeletedCategory](ctx, c, tableDeletedCategories, q)
	if err != nil {
		return nil, fmt.Errorf("find pending deleted category: %w", err)
	}
	return d, nil
}

// ForceDeleteCommunityCategory deletes without an audit row. Returns false
// if nothing was deleted.
func (c *Client) ForceDeleteCommunityCategory(ctx context.Context, id uuid.UUID) (bool, error) {
	cc, err := c.FindCommunityCategory(ctx, id)
	if err != nil || cc == nil {
		return false, err
	}
	if err := c.detachCommunities(ctx, id); err != nil {
		return false, err
	}
	// The category still exists, so any audit row for it was left by a
	// soft delete that did not finish.
	orphans := request{
		method: http.MethodDelete,
		table:  tableDeletedCategories,
		query:  url.Values{"original_id": {eq(id)}},
	}
	if err := c.do(ctx, orphans, nil); err != nil {
		return false, fmt.Errorf("remove pending deleted category: %w", err)
	}
	var rows []models.CommunityCategory
	r := request{
		method: http.MethodDelete,
		table:  tableCommunityCategories,
		query:  url.Values{"id": {eq(id)}},
		prefer: returnRepresentation,
	}
	if err := c.do(ctx, r, &rows); err != nil {
		return false, fmt.Errorf("force delete community category: %w", err)
	}
	return len(rows) > 0, nil
}

// ListDeletedCategories returns audit rows, most recently deleted first.
func (c *Client) ListDeletedCategories(ctx context.Context) ([]models.DeletedCategory, error) {
	q := url.Values{"select": {"*"}, "order": {"deleted_at.desc"}}
	return list[models.DeletedCategory](ctx, c, tableDeletedCategories, q)
}

// FindDeletedCategory retrieves an audit row by ID. Returns nil if not found.
func (c *Client) FindDeletedCategory(ctx context.Context, id uuid.UUID) (*models.DeletedCategory, error) {
	return one[models.DeletedCategory](ctx, c, tableDeletedCategories, url.Values{"select": {"*"}, "id": {eq(id)}})
}

// RestoreCommunityCategory reinserts the category, then removes the audit
// row. A conflict on the id is accepted when the stored row is the one
// being restored, so a repeated call finishes the job instead of failing.
func (c *Client) RestoreCommunityCategory(ctx context.Context, deletedID uuid.UUID, cc *models.CommunityCategory) (*models.CommunityCategory, error) {
	restored, err := c.CreateCommunityCategory(ctx, cc)
	if isConflict(err) && cc.ID != uuid.Nil {
		existing, ferr := c.FindCommunityCategory(ctx, cc.ID)
		if ferr != nil {
			return nil, fmt.Errorf("restore community category: %w", ferr)
		}
		if existing != nil && existing.Name == cc.Name && existing.Slug == cc.Slug {
			restored, err = existing, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("restore community category: %w", err)
	}
	if err := c.deleteByID(ctx, tableDeletedCategories, deletedID); err != nil {
		return nil, fmt.Errorf("remove deleted category: %w", err)
	}
	return restored, nil
}

// isConflict reports a unique violation.
func isConflict(err error) bool {
	var se *resilience.StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status == http.StatusConflict || se.Code == "23505"
}

// ListCategorizedCommunities returns every community with a category reference.
func (c *Client) ListCategorizedCommunities(ctx context.Context) ([]models.Community, error) {
	q := url.Values{"select": {"*"}, "category_id": {"not.is.null"}, "order": {"name"}}
	return list[models.Community](ctx, c, tableCommunities, q)
}

// FindCommunity retrieves a community by ID. Returns nil if not found.
func (c *Client) FindCommunity(ctx context.Context, id uuid.UUID) (*models.Community, error) {
	return one[models.Community](ctx, c, tableCommunities, url.Values{"select": {"*"}, "id": {eq(id)}})
}

// CreateCommunity inserts a community and returns it.
func (c *Client) CreateCommunity(ctx context.Context, cm *models.Community) (*models.Community, error) {
	id := cm.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row := communityRow{
		ID:                  id,
		Name:                cm.Name,
		Description:         cm.Description,
		Visibility:          cm.Visibility,
		PostingRestrictions: cm.PostingRestrictions,
		CategoryID:          cm.CategoryID,
	}
	if row.Visibility == "" {
		row.Visibility = models.VisibilityPublic
	}
	if row.PostingRestrictions == "" {
		row.PostingRestrictions = models.PostingAnyone
	}
	return insert[models.Community](ctx, c, tableCommunities, row)
}

// SetCommunityCategory points a community at categoryID, or clears the
// reference when categoryID is nil.
func (c *Client) SetCommunityCategory(ctx context.Context, communityID uuid.UUID, categoryID *uuid.UUID) error {
	r := request{
		method: http.MethodPatch,
		table:  tableCommunities,
		query:  url.Values{"id": {eq(communityID)}},
		body:   map[string]any{"category_id": categoryID},
	}
	if err := c.do(ctx, r, nil); err != nil {
		return fmt.Errorf("set community category: %w", err)
	}
	return nil
}

func (c *Client) detachCommunities(ctx context.Context, categoryID uuid.UUID) error {
	r := request{
		method: http.MethodPatch,
		table:  tableCommunities,
		query:  url.Values{"category_id": {eq(categoryID)}},
		body:   map[string]any{"category_id": nil},
	}
	if err := c.do(ctx, r, nil); err != nil {
		return fmt.Errorf("detach communities: %w", err)
	}
	return nil
}

func (c *Client) deleteByID(ctx context.Context, table string, id uuid.UUID) error {
	return c.do(ctx, request{method: http.MethodDelete, table: table, query: url.Values{"id": {eq(id)}}}, nil)
}
