// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who can see a community.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// PostingRestriction controls who can post in a community.
type PostingRestriction string

const (
	PostingAnyone     PostingRestriction = "anyone"
	PostingMembers    PostingRestriction = "members"
	PostingModerators PostingRestriction = "moderators"
)

// Community is a group that members post into. CategoryID, when set, must
// point at an existing CommunityCategory.
type Community struct {
	ID                  uuid.UUID          `json:"id" validate:"required"`
	Name                string             `json:"name" validate:"required,max=200"`
	Description         string             `json:"description"`
	Visibility          Visibility         `json:"visibility" validate:"omitempty,oneof=public private"`
	PostingRestrictions PostingRestriction `json:"posting_restrictions" validate:"omitempty,oneof=anyone members moderators"`
	CategoryID          *uuid.UUID         `json:"category_id"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}
