package models

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateNodeRequest represents the request body for creating a node
type CreateNodeRequest struct {
	OwnerID     string          `json:"ownerId" validate:"required,max=64"`
	Title       string          `json:"title" validate:"required,min=1,max=200"`
	ParentID    *string         `json:"parentId,omitempty" validate:"omitempty,min=1,max=64"`
	Order       *int            `json:"order,omitempty" validate:"omitempty,gte=0"`
	IsPublished bool            `json:"isPublished"`
	PositionX   *float64        `json:"positionX,omitempty"`
	PositionY   *float64        `json:"positionY,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// ReorderRequest represents the request body for moving a node
type ReorderRequest struct {
	NewParentID *string `json:"newParentId" validate:"omitempty,min=1,max=64"`
	NewOrder    *int    `json:"newOrder" validate:"required,gte=0"`
}

// BulkOperationRequest represents the request body for a bulk operation
type BulkOperationRequest struct {
	Operation string   `json:"operation" validate:"required,oneof=publish unpublish delete export"`
	NodeIDs   []string `json:"nodeIds" validate:"required,min=1,max=1000,dive,required,max=64"`
}

// Validate validates the create node request
func (r *CreateNodeRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the reorder request
func (r *ReorderRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the bulk operation request
func (r *BulkOperationRequest) Validate() error {
	return validate.Struct(r)
}
