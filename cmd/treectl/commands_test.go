package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ammiranda/knowledge_tree/cache"
	"github.com/ammiranda/knowledge_tree/models"
	"github.com/ammiranda/knowledge_tree/tree"
)

// run executes treectl against a bbolt file and returns stdout
func run(t *testing.T, boltPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--driver", "bolt", "--bolt-path", boltPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func createNode(t *testing.T, boltPath string, args ...string) models.Node {
	t.Helper()
	out, err := run(t, boltPath, append([]string{"create"}, args...)...)
	require.NoError(t, err)
	var n models.Node
	require.NoError(t, json.Unmarshal([]byte(out), &n))
	return n
}

func TestTreectlLifecycle(t *testing.T) {
	t.Setenv("APP_ENV", "")
	path := filepath.Join(t.TempDir(), "tree.bolt")

	root := createNode(t, path, "lesson-1", "Root")
	child := createNode(t, path, "lesson-1", "Child", "--parent", root.ID)
	other := createNode(t, path, "lesson-1", "Other", "--metadata", `{"color":"red"}`)
	assert.Equal(t, 1, child.Level)
	assert.Equal(t, 1, other.Order)

	out, err := run(t, path, "tree", "lesson-1")
	require.NoError(t, err)
	var resp models.TreeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Tree, 2)
	assert.Equal(t, 3, resp.Metadata.TotalNodes)
	require.Len(t, resp.Tree[0].Children, 1)
	assert.Equal(t, child.ID, resp.Tree[0].Children[0].ID)

	// move the child under the second root
	out, err = run(t, path, "reorder", child.ID, "0", "--parent", other.ID)
	require.NoError(t, err)
	var moved models.Node
	require.NoError(t, json.Unmarshal([]byte(out), &moved))
	require.NotNil(t, moved.ParentID)
	assert.Equal(t, other.ID, *moved.ParentID)

	_, err = run(t, path, "reorder", other.ID, "0", "--parent", child.ID)
	assert.ErrorIs(t, err, tree.ErrCycleDetected)

	out, err = run(t, path, "get", other.ID, "--descendants")
	require.NoError(t, err)
	var closure struct {
		IDs    []string `json:"ids"`
		Layers int      `json:"layers"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &closure))
	assert.Equal(t, []string{other.ID, child.ID}, closure.IDs)
	assert.Equal(t, 1, closure.Layers)

	out, err = run(t, path, "bulk", "delete", other.ID)
	require.NoError(t, err)
	var result models.BulkResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, int64(2), result.AffectedCount)

	_, err = run(t, path, "get", child.ID)
	assert.ErrorIs(t, err, tree.ErrNotFound)
}

func TestTreectlYAMLOutput(t *testing.T) {
	t.Setenv("APP_ENV", "")
	path := filepath.Join(t.TempDir(), "tree.bolt")
	root := createNode(t, path, "lesson-2", "Root", "--published")

	out, err := run(t, path, "get", root.ID, "-o", "yaml")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, root.ID, doc["id"])
	assert.Equal(t, "Root", doc["title"])
	assert.Equal(t, true, doc["isPublished"])
}

func TestTreectlRejections(t *testing.T) {
	t.Setenv("APP_ENV", "")
	path := filepath.Join(t.TempDir(), "tree.bolt")

	_, err := run(t, path, "bulk", "archive", "n1")
	assert.ErrorIs(t, err, tree.ErrValidation)

	_, err = run(t, path, "create", "lesson-3", "Bad", "--metadata", "{")
	assert.ErrorIs(t, err, tree.ErrValidation)

	_, err = run(t, path, "reorder", "n1", "first")
	assert.ErrorIs(t, err, tree.ErrValidation)

	_, err = run(t, path, "create", "lesson-3", "Orphan", "--parent", "missing")
	assert.ErrorIs(t, err, tree.ErrParentNotFound)

	_, err = run(t, path, "migrate", "version")
	assert.ErrorContains(t, err, "no SQL schema")

	_, err = run(t, path, "tree", "lesson-3", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestTreectlMutationsInvalidateCache(t *testing.T) {
	t.Setenv("APP_ENV", "")
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tree.bolt")

	mockCache := cache.NewMockCache()
	require.NoError(t, cache.SetProvider(ctx, mockCache))
	t.Cleanup(cache.ResetProvider)

	cached := func() bool {
		_, found := mockCache.GetTree(ctx, "lesson-4")
		return found
	}
	readTree := func() {
		t.Helper()
		_, err := run(t, path, "tree", "lesson-4")
		require.NoError(t, err)
		require.True(t, cached(), "tree read should fill the cache")
	}

	root := createNode(t, path, "lesson-4", "Root")
	child := createNode(t, path, "lesson-4", "Child", "--parent", root.ID)

	readTree()
	_, err := run(t, path, "create", "lesson-4", "Sibling", "--parent", root.ID)
	require.NoError(t, err)
	assert.False(t, cached(), "create must drop the cached tree")

	readTree()
	_, err = run(t, path, "reorder", child.ID, "0")
	require.NoError(t, err)
	assert.False(t, cached(), "reorder must drop the cached tree")

	readTree()
	_, err = run(t, path, "bulk", "export", child.ID)
	require.NoError(t, err)
	assert.True(t, cached(), "export leaves the cache alone")

	_, err = run(t, path, "bulk", "publish", child.ID)
	require.NoError(t, err)
	assert.False(t, cached(), "publish must drop cached trees")

	readTree()
	_, err = run(t, path, "bulk", "delete", root.ID)
	require.NoError(t, err)
	assert.False(t, cached(), "delete must drop cached trees")

	// a failing cache does not undo a committed write
	mockCache.SetShouldFail(true)
	_, err = run(t, path, "reorder", child.ID, "1")
	require.NoError(t, err)
}
