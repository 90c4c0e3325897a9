// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is a row of the legacy "categories" table. It predates
// CommunityCategory and is kept only so old community references can be
// traced back to a name during reconciliation.
type Category struct {
	ID        uuid.UUID `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required,max=200"`
	Slug      string    `json:"slug" validate:"max=300"`
	CreatedAt time.Time `json:"created_at"`
}

// CommunityCategory is the canonical category record shown in the UI.
// OrderIndex drives display order.
type CommunityCategory struct {
	ID         uuid.UUID `json:"id" validate:"required"`
	Name       string    `json:"name" validate:"required,max=200"`
	Slug       string    `json:"slug" validate:"required,max=300"`
	OrderIndex int       `json:"order_index" validate:"gte=0"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DeletedCategory is the audit row written when a CommunityCategory is
// soft-deleted. It carries everything needed to restore the original.
type DeletedCategory struct {
	ID         uuid.UUID  `json:"id" validate:"required"`
	OriginalID uuid.UUID  `json:"original_id" validate:"required"`
	Name       string     `json:"name" validate:"required"`
	Slug       string     `json:"slug" validate:"required"`
	OrderIndex int        `json:"order_index"`
	DeletedAt  time.Time  `json:"deleted_at"`
	DeletedBy  *uuid.UUID `json:"deleted_by"`
}

// ReorderItem is one entry of a category reorder request.
type ReorderItem struct {
	ID         uuid.UUID `json:"id" validate:"required"`
	OrderIndex int       `json:"order_index" validate:"gte=0"`
}
