package tree

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ammiranda/knowledge_tree/repository"
)

// NewNode describes a node to create
type NewNode struct {
	OwnerID     string
	Title       string
	ParentID    *string
	Order       *int // appended after the last sibling when nil
	IsPublished bool
	PositionX   *float64
	PositionY   *float64
	Metadata    []byte
}

// CreateNode inserts a node under an existing parent of the same owner, or
// as a root, with its level derived from the parent.
func (e *Engine) CreateNode(ctx context.Context, in NewNode) (node *repository.Node, err error) {
	ctx, done := e.track(ctx, "create", attribute.String("owner.id", in.OwnerID))
	defer done(&err)

	if in.OwnerID == "" {
		return nil, validationErrorf("owner id is required")
	}
	if in.Title == "" {
		return nil, validationErrorf("title is required")
	}
	if in.Order != nil && *in.Order < 0 {
		return nil, validationErrorf("order must not be negative")
	}
	if in.ParentID != nil && *in.ParentID == "" {
		in.ParentID = nil
	}

	err = e.withTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		level := 0
		var siblings []*repository.Node

		if in.ParentID != nil {
			parent, err := tx.GetNode(ctx, *in.ParentID)
			if err != nil {
				return notFound(err, ErrParentNotFound, *in.ParentID)
			}
			if parent.OwnerID != in.OwnerID {
				return validationErrorf("parent %s belongs to a different owner", parent.ID)
			}
			level = parent.Level + 1
			if level > e.maxDepth {
				return fmt.Errorf("%w: new node would sit at level %d", ErrMaxDepthExceeded, level)
			}
			if in.Order == nil {
				if siblings, err = tx.GetChildrenOf(ctx, []string{parent.ID}); err != nil {
					return fmt.Errorf("error loading siblings: %w", err)
				}
			}
		} else if in.Order == nil {
			all, err := tx.GetNodesByOwner(ctx, in.OwnerID)
			if err != nil {
				return fmt.Errorf("error loading roots: %w", err)
			}
			for _, n := range all {
				if n.ParentID == nil {
					siblings = append(siblings, n)
				}
			}
		}

		order := 0
		if in.Order != nil {
			order = *in.Order
		} else {
			for i, s := range siblings {
				if i == 0 || s.Order >= order {
					order = s.Order + 1
				}
			}
		}

		created := &repository.Node{
			ID:          e.newID(),
			OwnerID:     in.OwnerID,
			ParentID:    in.ParentID,
			Title:       in.Title,
			Level:       level,
			Order:       order,
			IsPublished: in.IsPublished,
			PositionX:   in.PositionX,
			PositionY:   in.PositionY,
			Metadata:    in.Metadata,
		}
		if err := tx.CreateNodes(ctx, []*repository.Node{created}); err != nil {
			return fmt.Errorf("error creating node: %w", err)
		}

		stored, err := tx.GetNode(ctx, created.ID)
		if err != nil {
			return err
		}
		node = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}
