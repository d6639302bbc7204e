package tree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammiranda/knowledge_tree/models"
	"github.com/ammiranda/knowledge_tree/repository"
)

func childIDs(n *models.TreeNode) []string {
	ids := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestBuildForestOrdersChildren(t *testing.T) {
	nodes := []*repository.Node{
		mkNode("c3", "r", 1, 2),
		mkNode("g1", "c1", 2, 0),
		mkNode("r", "", 0, 0),
		mkNode("c1", "r", 1, 0),
		mkNode("c2b", "r", 1, 1),
		mkNode("c2a", "r", 1, 1),
		mkNode("r2", "", 0, -1),
	}

	forest, err := BuildForest(nodes, DefaultMaxDepth)
	require.NoError(t, err)

	require.Len(t, forest.Roots, 2)
	assert.Equal(t, "r2", forest.Roots[0].ID)
	root := forest.Roots[1]
	assert.Equal(t, "r", root.ID)
	assert.Equal(t, []string{"c1", "c2a", "c2b", "c3"}, childIDs(root))
	assert.Equal(t, []string{"g1"}, childIDs(root.Children[0]))
	assert.Empty(t, root.Children[1].Children)
	assert.Equal(t, 2, forest.MaxDepth)
	assert.Equal(t, len(nodes), forest.Reached)
}

func TestBuildForestChildrenMatchParentIDs(t *testing.T) {
	var nodes []*repository.Node
	nodes = append(nodes, mkNode("root", "", 0, 0))
	for i, id := range []string{"a", "b", "c", "d"} {
		nodes = append(nodes, mkNode(id, "root", 1, 10-i))
		nodes = append(nodes, mkNode(id+"1", id, 2, i), mkNode(id+"2", id, 2, -i))
	}

	forest, err := BuildForest(nodes, DefaultMaxDepth)
	require.NoError(t, err)

	var walk func(n *models.TreeNode)
	walk = func(n *models.TreeNode) {
		var expected []string
		for _, candidate := range nodes {
			if candidate.ParentID != nil && *candidate.ParentID == n.ID {
				expected = append(expected, candidate.ID)
			}
		}
		assert.ElementsMatch(t, expected, childIDs(n), "children of %s", n.ID)
		for i := 1; i < len(n.Children); i++ {
			assert.LessOrEqual(t, n.Children[i-1].Order, n.Children[i].Order)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range forest.Roots {
		walk(r)
	}
}

func TestBuildForestSkipsUnreachableNodes(t *testing.T) {
	nodes := []*repository.Node{
		mkNode("r", "", 0, 0),
		mkNode("orphan", "missing", 1, 0),
		mkNode("x", "y", 1, 0),
		mkNode("y", "x", 1, 0),
	}

	forest, err := BuildForest(nodes, DefaultMaxDepth)
	require.NoError(t, err)
	require.Len(t, forest.Roots, 1)
	assert.Empty(t, forest.Roots[0].Children)
	assert.Equal(t, 1, forest.Reached)
}

func TestBuildForestDepthCeiling(t *testing.T) {
	nodes := []*repository.Node{mkNode("n0", "", 0, 0)}
	for i := 1; i <= 5; i++ {
		nodes = append(nodes, mkNode(idOf(i), idOf(i-1), i, 0))
	}

	_, err := BuildForest(nodes, 5)
	require.NoError(t, err)

	_, err = BuildForest(nodes, 4)
	assert.True(t, errors.Is(err, ErrMaxDepthExceeded))
}

func TestBuildTreeResponse(t *testing.T) {
	nodes := []*repository.Node{
		mkNode("r", "", 0, 0),
		mkNode("c", "r", 1, 0),
		mkNode("r2", "", 0, 1),
	}

	resp, err := BuildTreeResponse(testOwner, nodes, DefaultMaxDepth)
	require.NoError(t, err)
	assert.Equal(t, testOwner, resp.OwnerID)
	assert.Len(t, resp.Nodes, 3)
	assert.Equal(t, models.TreeMetadata{TotalNodes: 3, MaxDepth: 1, RootCount: 2}, resp.Metadata)
}

func idOf(i int) string {
	return "n" + string(rune('0'+i))
}
