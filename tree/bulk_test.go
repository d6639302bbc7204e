package tree

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammiranda/knowledge_tree/repository"
)

func TestBulkDeleteRemovesClosure(t *testing.T) {
	engine, repo := newTestEngine(t,
		mkNode("R", "", 0, 0),
		mkNode("A", "R", 1, 0),
		mkNode("B", "A", 2, 0),
		mkNode("C", "B", 3, 0),
		mkNode("D", "R", 1, 1),
	)
	ctx := context.Background()

	result, err := engine.Bulk(ctx, OperationDelete, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, "delete", result.Operation)
	assert.Equal(t, int64(3), result.AffectedCount)

	for _, id := range []string{"A", "B", "C"} {
		_, err := repo.GetNode(ctx, id)
		assert.ErrorIsf(t, err, repository.ErrNodeNotFound, "%s should be gone", id)
	}
	for _, id := range []string{"R", "D"} {
		_, err := repo.GetNode(ctx, id)
		assert.NoErrorf(t, err, "%s should remain", id)
	}
}

func TestBulkDeleteRollsBackOnFailure(t *testing.T) {
	engine, repo := newTestEngine(t,
		mkNode("A", "", 0, 0),
		mkNode("B", "A", 1, 0),
	)
	ctx := context.Background()
	repo.InjectFailure("DeleteNodes", 0, errors.New("disk full"))

	_, err := engine.Bulk(ctx, OperationDelete, []string{"A"})
	assert.True(t, errors.Is(err, ErrTransactionFailure), "got %v", err)

	nodes, err := repo.GetNodesByOwner(ctx, testOwner)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestBulkDeleteOnCycleFails(t *testing.T) {
	engine, repo := newTestEngine(t,
		mkNode("A", "C", 1, 0),
		mkNode("B", "A", 2, 0),
		mkNode("C", "B", 3, 0),
	)

	_, err := engine.Bulk(context.Background(), OperationDelete, []string{"A"})
	assert.True(t, errors.Is(err, ErrMaxDepthExceeded), "got %v", err)

	nodes, err := repo.GetNodesByOwner(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
}

func TestBulkPublishDoesNotCascade(t *testing.T) {
	engine, repo := newTestEngine(t,
		mkNode("A", "", 0, 0),
		mkNode("B", "", 0, 1),
		mkNode("C", "A", 1, 0),
	)
	ctx := context.Background()

	result, err := engine.Bulk(ctx, OperationPublish, []string{"A", "B", "A"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.AffectedCount)

	for id, published := range map[string]bool{"A": true, "B": true, "C": false} {
		n, err := repo.GetNode(ctx, id)
		require.NoError(t, err)
		assert.Equalf(t, published, n.IsPublished, "isPublished of %s", id)
	}

	result, err = engine.Bulk(ctx, OperationUnpublish, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, "unpublish", result.Operation)
	assert.Equal(t, int64(1), result.AffectedCount)

	a, err := repo.GetNode(ctx, "A")
	require.NoError(t, err)
	assert.False(t, a.IsPublished)
	b, err := repo.GetNode(ctx, "B")
	require.NoError(t, err)
	assert.True(t, b.IsPublished)
}

func TestBulkExportReadsOneLevel(t *testing.T) {
	engine, repo := newTestEngine(t,
		mkNode("R", "", 0, 0),
		mkNode("A", "R", 1, 0),
		mkNode("B", "A", 2, 0),
		mkNode("D", "R", 1, 1),
	)
	ctx := context.Background()

	result, err := engine.Bulk(ctx, OperationExport, []string{"R", "A", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Count)

	var ids []string
	for _, n := range result.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"R", "A", "B", "D"}, ids)

	result, err = engine.Bulk(ctx, OperationExport, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count, "grandchildren are not exported")

	nodes, err := repo.GetNodesByOwner(ctx, testOwner)
	require.NoError(t, err)
	assert.Len(t, nodes, 4)
}

func TestBulkValidation(t *testing.T) {
	engine, repo := newTestEngine(t, mkNode("A", "", 0, 0))
	ctx := context.Background()

	testCases := []struct {
		name string
		op   Operation
		ids  []string
	}{
		{name: "Missing operation", op: "", ids: []string{"A"}},
		{name: "Unknown operation", op: "archive", ids: []string{"A"}},
		{name: "No ids", op: OperationPublish, ids: nil},
		{name: "Blank id", op: OperationDelete, ids: []string{"A", ""}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Bulk(ctx, tc.op, tc.ids)
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
		})
	}

	assert.Zero(t, repo.CallCount("UpdateNodes"))
	assert.Zero(t, repo.CallCount("DeleteNodes"))
	assert.Zero(t, repo.CallCount("GetChildrenOf"))
}

func TestBulkUnknownOperationMetricLabel(t *testing.T) {
	engine, _ := newTestEngine(t, mkNode("A", "", 0, 0))
	ctx := context.Background()

	_, err := engine.Bulk(ctx, "archive", []string{"A"})
	require.ErrorIs(t, err, ErrValidation)

	rejected := operationTotal.WithLabelValues("bulk", "validation")
	before := testutil.ToFloat64(rejected)
	series := testutil.CollectAndCount(operationTotal)

	for _, op := range []Operation{"purge", "archive-all", "drop"} {
		_, err := engine.Bulk(ctx, op, []string{"A"})
		require.ErrorIs(t, err, ErrValidation)
	}

	assert.Equal(t, before+3, testutil.ToFloat64(rejected))
	assert.Equal(t, series, testutil.CollectAndCount(operationTotal), "unknown operations must not add label values")
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation("export")
	require.NoError(t, err)
	assert.Equal(t, OperationExport, op)

	_, err = ParseOperation("archive")
	assert.ErrorIs(t, err, ErrValidation)
}
