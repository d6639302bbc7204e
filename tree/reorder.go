package tree

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ammiranda/knowledge_tree/repository"
)

// Reorder moves nodeID under newParentID (nil makes it a root) at position
// newOrder, then recomputes level for its whole subtree one layer at a time.
// The move and every cascaded level write commit together or not at all.
// A parent inside the node's own subtree fails with ErrCycleDetected.
func (e *Engine) Reorder(ctx context.Context, nodeID string, newParentID *string, newOrder int) (node *repository.Node, err error) {
	parentAttr := ""
	if newParentID != nil {
		parentAttr = *newParentID
	}
	ctx, done := e.track(ctx, "reorder",
		attribute.String("node.id", nodeID),
		attribute.String("parent.id", parentAttr),
		attribute.Int("order", newOrder),
	)
	defer done(&err)

	if nodeID == "" {
		return nil, validationErrorf("node id is required")
	}
	if newOrder < 0 {
		return nil, validationErrorf("order must not be negative")
	}
	if newParentID != nil && *newParentID == "" {
		newParentID = nil
	}
	if newParentID != nil && *newParentID == nodeID {
		return nil, fmt.Errorf("%w: node %s cannot be its own parent", ErrCycleDetected, nodeID)
	}

	var cascaded int64
	err = e.withTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		current, err := tx.GetNode(ctx, nodeID)
		if err != nil {
			return notFound(err, ErrNotFound, nodeID)
		}

		newLevel := 0
		if newParentID != nil {
			parent, err := tx.GetNode(ctx, *newParentID)
			if err != nil {
				return notFound(err, ErrParentNotFound, *newParentID)
			}
			if parent.OwnerID != current.OwnerID {
				return validationErrorf("parent %s belongs to a different owner", parent.ID)
			}

			closure, err := ResolveDescendants(ctx, tx, []string{current.ID}, e.maxDepth)
			if err != nil {
				return err
			}
			resolverLayers.Observe(float64(closure.Layers))
			if closure.Contains(parent.ID) {
				return fmt.Errorf("%w: %s is a descendant of %s", ErrCycleDetected, parent.ID, current.ID)
			}

			newLevel = parent.Level + 1
			if newLevel > e.maxDepth {
				return fmt.Errorf("%w: node %s would sit at level %d", ErrMaxDepthExceeded, current.ID, newLevel)
			}
		}

		_, err = tx.UpdateNodes(ctx, []string{current.ID}, repository.NodePatch{
			SetParent: true,
			ParentID:  newParentID,
			Order:     &newOrder,
			Level:     &newLevel,
		})
		if err != nil {
			return fmt.Errorf("error moving node %s: %w", current.ID, err)
		}

		cascaded, err = e.cascadeLevels(ctx, tx, current.ID, newLevel)
		if err != nil {
			return err
		}

		node, err = tx.GetNode(ctx, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	affectedNodes.WithLabelValues("reorder").Observe(float64(cascaded + 1))
	return node, nil
}

// cascadeLevels rewrites the level of every descendant of rootID, one batched
// write per layer, starting from the already-written rootLevel. It returns the
// number of descendants written.
func (e *Engine) cascadeLevels(ctx context.Context, tx repository.Store, rootID string, rootLevel int) (int64, error) {
	visited := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}
	level := rootLevel
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		children, err := tx.GetChildrenOf(ctx, frontier)
		if err != nil {
			return written, fmt.Errorf("error loading children: %w", err)
		}

		var layer []string
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			layer = append(layer, child.ID)
		}
		if len(layer) == 0 {
			return written, nil
		}

		level++
		if level > e.maxDepth {
			return written, fmt.Errorf("%w: descendants of %s would sit below level %d", ErrMaxDepthExceeded, rootID, e.maxDepth)
		}

		n, err := tx.UpdateNodes(ctx, layer, repository.NodePatch{Level: &level})
		if err != nil {
			return written, fmt.Errorf("error updating levels at depth %d: %w", level, err)
		}
		written += n
		frontier = layer
	}
}
