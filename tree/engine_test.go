package tree

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammiranda/knowledge_tree/repository"
)

func TestEngineTree(t *testing.T) {
	engine, repo := newTestEngine(t,
		mkNode("C2", "R", 1, 1),
		mkNode("C1", "R", 1, 0),
		mkNode("G", "C1", 2, 0),
		mkNode("R", "", 0, 0),
		mkNode("S", "", 0, 1),
	)
	ctx := context.Background()

	resp, err := engine.Tree(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, testOwner, resp.OwnerID)
	assert.Equal(t, 5, resp.Metadata.TotalNodes)
	assert.Equal(t, 2, resp.Metadata.RootCount)
	assert.Equal(t, 2, resp.Metadata.MaxDepth)
	assert.Len(t, resp.Nodes, 5)

	require.Len(t, resp.Tree, 2)
	assert.Equal(t, "R", resp.Tree[0].ID)
	require.Len(t, resp.Tree[0].Children, 2)
	assert.Equal(t, "C1", resp.Tree[0].Children[0].ID)
	assert.Equal(t, "C2", resp.Tree[0].Children[1].ID)
	assert.Equal(t, "G", resp.Tree[0].Children[0].Children[0].ID)

	// one owner read, no per-node queries
	assert.Equal(t, 1, repo.CallCount("GetNodesByOwner"))
	assert.Zero(t, repo.CallCount("GetChildrenOf"))
	assert.Zero(t, repo.CallCount("GetNode"))
}

func TestEngineTreeErrors(t *testing.T) {
	engine, repo := newTestEngine(t, mkNode("R", "", 0, 0))
	ctx := context.Background()

	_, err := engine.Tree(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = engine.Tree(ctx, "unknown-lesson")
	assert.ErrorIs(t, err, ErrNotFound)

	repo.InjectFailure("GetNodesByOwner", 0, errors.New("timeout"))
	_, err = engine.Tree(ctx, testOwner)
	assert.ErrorIs(t, err, ErrTransactionFailure)
}

func TestEngineGetNode(t *testing.T) {
	engine, _ := newTestEngine(t, mkNode("R", "", 0, 0))
	ctx := context.Background()

	n, err := engine.GetNode(ctx, "R")
	require.NoError(t, err)
	assert.Equal(t, "node R", n.Title)

	_, err = engine.GetNode(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = engine.GetNode(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "ok", ErrorKind(nil))
	assert.Equal(t, "cycle_detected", ErrorKind(ErrCycleDetected))
	assert.Equal(t, "transaction_failure", ErrorKind(errors.New("boom")))
	assert.Equal(t, "not_found", ErrorKind(asTransactionFailure(notFound(repository.ErrNodeNotFound, ErrNotFound, "x"))))
	assert.Equal(t, "transaction_failure", ErrorKind(notFound(errors.New("io"), ErrNotFound, "x")))
}
