package tree

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ammiranda/knowledge_tree/models"
	"github.com/ammiranda/knowledge_tree/repository"
)

// Operation names a bulk operation
type Operation string

const (
	OperationPublish   Operation = "publish"
	OperationUnpublish Operation = "unpublish"
	OperationDelete    Operation = "delete"
	OperationExport    Operation = "export"
)

// ParseOperation validates a bulk operation name
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OperationPublish, OperationUnpublish, OperationDelete, OperationExport:
		return op, nil
	case "":
		return "", validationErrorf("operation is required")
	default:
		return "", validationErrorf("unknown operation %q", s)
	}
}

// Bulk applies op to nodeIDs. Publish and unpublish touch exactly the given
// nodes. Delete removes the given nodes with their whole descendant closure
// in one transaction. Export reads the given nodes plus their direct children.
func (e *Engine) Bulk(ctx context.Context, op Operation, nodeIDs []string) (result *models.BulkResult, err error) {
	// unknown operations share one label so metric cardinality stays bounded
	_, parseErr := ParseOperation(string(op))
	name := "bulk"
	if parseErr == nil {
		name = "bulk_" + string(op)
	}
	ctx, done := e.track(ctx, name,
		attribute.String("operation", string(op)),
		attribute.Int("node.count", len(nodeIDs)),
	)
	defer done(&err)

	if parseErr != nil {
		return nil, parseErr
	}
	ids, err := normalizeIDs(nodeIDs)
	if err != nil {
		return nil, err
	}

	switch op {
	case OperationPublish, OperationUnpublish:
		result, err = e.setPublished(ctx, op, ids)
	case OperationDelete:
		result, err = e.deleteClosure(ctx, ids)
	case OperationExport:
		result, err = e.export(ctx, ids)
	}
	if err != nil {
		return nil, err
	}

	affected := result.AffectedCount
	if op == OperationExport {
		affected = int64(result.Count)
	}
	affectedNodes.WithLabelValues("bulk_" + string(op)).Observe(float64(affected))
	return result, nil
}

// normalizeIDs rejects an empty or blank id list and drops repeats
func normalizeIDs(nodeIDs []string) ([]string, error) {
	if len(nodeIDs) == 0 {
		return nil, validationErrorf("nodeIds must be a non-empty list")
	}
	seen := make(map[string]struct{}, len(nodeIDs))
	ids := make([]string, 0, len(nodeIDs))
	for i, id := range nodeIDs {
		if id == "" {
			return nil, validationErrorf("nodeIds[%d] is empty", i)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Engine) setPublished(ctx context.Context, op Operation, ids []string) (*models.BulkResult, error) {
	published := op == OperationPublish
	n, err := e.repo.UpdateNodes(ctx, ids, repository.NodePatch{IsPublished: &published})
	if err != nil {
		return nil, asTransactionFailure(err)
	}
	return &models.BulkResult{Operation: string(op), AffectedCount: n}, nil
}

func (e *Engine) deleteClosure(ctx context.Context, ids []string) (*models.BulkResult, error) {
	var deleted int64
	err := e.withTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		closure, err := ResolveDescendants(ctx, tx, ids, e.maxDepth)
		if err != nil {
			return err
		}
		resolverLayers.Observe(float64(closure.Layers))

		deleted, err = tx.DeleteNodes(ctx, closure.IDs)
		if err != nil {
			return fmt.Errorf("error deleting %d nodes: %w", len(closure.IDs), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.BulkResult{Operation: string(OperationDelete), AffectedCount: deleted}, nil
}

func (e *Engine) export(ctx context.Context, ids []string) (*models.BulkResult, error) {
	var nodes []*repository.Node
	err := e.withTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		requested, err := tx.GetNodes(ctx, ids)
		if err != nil {
			return fmt.Errorf("error loading nodes: %w", err)
		}
		children, err := tx.GetChildrenOf(ctx, ids)
		if err != nil {
			return fmt.Errorf("error loading children: %w", err)
		}

		seen := make(map[string]struct{}, len(requested)+len(children))
		for _, group := range [][]*repository.Node{requested, children} {
			for _, n := range group {
				if _, dup := seen[n.ID]; dup {
					continue
				}
				seen[n.ID] = struct{}{}
				nodes = append(nodes, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.BulkResult{
		Operation: string(OperationExport),
		Nodes:     models.NewNodes(nodes),
		Count:     len(nodes),
	}, nil
}
