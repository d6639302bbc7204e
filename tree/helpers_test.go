package tree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ammiranda/knowledge_tree/repository"
)

const testOwner = "lesson-1"

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

// mkNode builds a node of testOwner; an empty parent makes a root
func mkNode(id, parent string, level, order int) *repository.Node {
	n := &repository.Node{
		ID:      id,
		OwnerID: testOwner,
		Title:   "node " + id,
		Level:   level,
		Order:   order,
	}
	if parent != "" {
		n.ParentID = strPtr(parent)
	}
	return n
}

func newTestEngine(t *testing.T, nodes ...*repository.Node) (*Engine, *repository.MockRepository) {
	t.Helper()
	repo := repository.NewMockRepository()
	require.NoError(t, repo.Initialize(context.Background()))
	if len(nodes) > 0 {
		require.NoError(t, repo.CreateNodes(context.Background(), nodes))
	}
	repo.ResetCalls()
	return NewEngine(repo), repo
}

// assertLevelsConsistent checks level == 0 for roots and parent level + 1 otherwise
func assertLevelsConsistent(t *testing.T, repo *repository.MockRepository) {
	t.Helper()
	nodes, err := repo.GetNodesByOwner(context.Background(), testOwner)
	require.NoError(t, err)

	byID := make(map[string]*repository.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, n := range nodes {
		if n.ParentID == nil {
			require.Equalf(t, 0, n.Level, "root %s", n.ID)
			continue
		}
		parent, ok := byID[*n.ParentID]
		require.Truef(t, ok, "parent of %s missing", n.ID)
		require.Equalf(t, parent.Level+1, n.Level, "level of %s", n.ID)
	}
}
