package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammiranda/knowledge_tree/config"
	"github.com/ammiranda/knowledge_tree/migrations"
)

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }

func node(id, owner, parent string, level, order int) *Node {
	n := &Node{ID: id, OwnerID: owner, Title: "node " + id, Level: level, Order: order}
	if parent != "" {
		n.ParentID = strPtr(parent)
	}
	return n
}

func ids(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

// backends returns every Repository implementation that runs without a server
func backends(t *testing.T) map[string]Repository {
	dir := t.TempDir()
	return map[string]Repository{
		"memory": NewMockRepository(),
		"sqlite": NewSQLiteRepository(filepath.Join(dir, "tree.db")),
		"bolt":   NewBoltRepository(filepath.Join(dir, "tree.bolt")),
	}
}

func seed(t *testing.T, repo Repository) {
	t.Helper()
	x, y := 1.5, -2.0
	root := node("R", "lesson-1", "", 0, 0)
	root.PositionX, root.PositionY = &x, &y
	root.Metadata = []byte(`{"color":"red"}`)

	require.NoError(t, repo.CreateNodes(context.Background(), []*Node{
		root,
		node("B", "lesson-1", "R", 1, 1),
		node("A", "lesson-1", "R", 1, 0),
		node("A1", "lesson-1", "A", 2, 0),
		node("S", "lesson-1", "", 0, 1),
		node("O", "lesson-2", "", 0, 0),
	}))
}

func TestRepositoryContract(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Initialize(ctx))
			defer repo.Cleanup(ctx)
			seed(t, repo)

			t.Run("GetNode", func(t *testing.T) {
				r, err := repo.GetNode(ctx, "R")
				require.NoError(t, err)
				assert.Equal(t, "lesson-1", r.OwnerID)
				assert.Nil(t, r.ParentID)
				require.NotNil(t, r.PositionX)
				assert.Equal(t, 1.5, *r.PositionX)
				assert.JSONEq(t, `{"color":"red"}`, string(r.Metadata))
				assert.False(t, r.CreatedAt.IsZero())

				_, err = repo.GetNode(ctx, "missing")
				assert.True(t, errors.Is(err, ErrNodeNotFound), "got %v", err)
			})

			t.Run("GetNodes", func(t *testing.T) {
				nodes, err := repo.GetNodes(ctx, []string{"A1", "missing", "R", "A1"})
				require.NoError(t, err)
				assert.Equal(t, []string{"A1", "R"}, ids(nodes))
			})

			t.Run("GetChildrenOf", func(t *testing.T) {
				nodes, err := repo.GetChildrenOf(ctx, []string{"R", "A", "S"})
				require.NoError(t, err)
				assert.Equal(t, []string{"A1", "A", "B"}, ids(nodes))
			})

			t.Run("GetNodesByOwner", func(t *testing.T) {
				nodes, err := repo.GetNodesByOwner(ctx, "lesson-1")
				require.NoError(t, err)
				assert.Equal(t, []string{"R", "S", "A", "B", "A1"}, ids(nodes))

				nodes, err = repo.GetNodesByOwner(ctx, "nobody")
				require.NoError(t, err)
				assert.Empty(t, nodes)
			})

			t.Run("CreateDuplicate", func(t *testing.T) {
				err := repo.CreateNodes(ctx, []*Node{node("R", "lesson-1", "", 0, 9)})
				assert.Error(t, err)
			})

			t.Run("UpdateNodes", func(t *testing.T) {
				n, err := repo.UpdateNodes(ctx, []string{"A", "B", "missing"}, NodePatch{IsPublished: boolPtr(true)})
				require.NoError(t, err)
				assert.Equal(t, int64(2), n)

				// move A1 under S
				n, err = repo.UpdateNodes(ctx, []string{"A1"}, NodePatch{SetParent: true, ParentID: strPtr("S"), Level: intPtr(1), Order: intPtr(3)})
				require.NoError(t, err)
				assert.Equal(t, int64(1), n)

				moved, err := repo.GetNode(ctx, "A1")
				require.NoError(t, err)
				assert.Equal(t, "S", *moved.ParentID)
				assert.Equal(t, 1, moved.Level)
				assert.Equal(t, 3, moved.Order)

				children, err := repo.GetChildrenOf(ctx, []string{"A"})
				require.NoError(t, err)
				assert.Empty(t, children)
				children, err = repo.GetChildrenOf(ctx, []string{"S"})
				require.NoError(t, err)
				assert.Equal(t, []string{"A1"}, ids(children))

				a, err := repo.GetNode(ctx, "A")
				require.NoError(t, err)
				assert.True(t, a.IsPublished)
			})

			t.Run("TransactionRollback", func(t *testing.T) {
				boom := errors.New("boom")
				err := repo.WithTransaction(ctx, func(ctx context.Context, tx Store) error {
					if _, err := tx.UpdateNodes(ctx, []string{"B"}, NodePatch{Order: intPtr(42)}); err != nil {
						return err
					}
					if _, err := tx.DeleteNodes(ctx, []string{"S"}); err != nil {
						return err
					}
					b, err := tx.GetNode(ctx, "B")
					require.NoError(t, err)
					assert.Equal(t, 42, b.Order, "writes are visible inside the transaction")
					return boom
				})
				assert.ErrorIs(t, err, boom)

				b, err := repo.GetNode(ctx, "B")
				require.NoError(t, err)
				assert.Equal(t, 1, b.Order)
				_, err = repo.GetNode(ctx, "S")
				assert.NoError(t, err)
			})

			t.Run("TransactionCommit", func(t *testing.T) {
				err := repo.WithTransaction(ctx, func(ctx context.Context, tx Store) error {
					n, err := tx.DeleteNodes(ctx, []string{"A1", "S"})
					if err != nil {
						return err
					}
					assert.Equal(t, int64(2), n)
					return nil
				})
				require.NoError(t, err)

				nodes, err := repo.GetNodesByOwner(ctx, "lesson-1")
				require.NoError(t, err)
				assert.Equal(t, []string{"R", "A", "B"}, ids(nodes))
			})
		})
	}
}

func TestMockRepositoryFailureInjection(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateNodes(ctx, []*Node{node("R", "lesson-1", "", 0, 0)}))

	repo.InjectFailure("GetNode", 1, errors.New("flaky"))
	_, err := repo.GetNode(ctx, "R")
	assert.NoError(t, err)
	_, err = repo.GetNode(ctx, "R")
	assert.EqualError(t, err, "flaky")
	assert.Equal(t, 2, repo.CallCount("GetNode"))

	repo.ResetCalls()
	_, err = repo.GetNode(ctx, "R")
	assert.NoError(t, err)
}

func TestMockRepositoryReturnsCopies(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateNodes(ctx, []*Node{node("R", "lesson-1", "", 0, 0)}))

	n, err := repo.GetNode(ctx, "R")
	require.NoError(t, err)
	n.Title = "changed"

	again, err := repo.GetNode(ctx, "R")
	require.NoError(t, err)
	assert.Equal(t, "node R", again.Title)
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	testCases := []struct {
		name     string
		cfg      config.AppConfig
		expected Repository
	}{
		{name: "memory", cfg: config.AppConfig{StorageDriver: config.DriverMemory}, expected: &MockRepository{}},
		{name: "sqlite", cfg: config.AppConfig{StorageDriver: config.DriverSQLite, SQLitePath: filepath.Join(dir, "a.db")}, expected: &SQLiteRepository{}},
		{name: "bolt", cfg: config.AppConfig{StorageDriver: config.DriverBolt, BoltPath: filepath.Join(dir, "a.bolt")}, expected: &BoltRepository{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := New(ctx, &tc.cfg, nil)
			require.NoError(t, err)
			assert.IsType(t, tc.expected, repo)
		})
	}

	_, err := New(ctx, &config.AppConfig{StorageDriver: "mongo"}, nil)
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	assert.Nil(t, chunk(nil, 3))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunk([]string{"a", "b", "c"}, 2))
}

func TestPostgresDialect(t *testing.T) {
	d := postgresDialect{}
	assert.Equal(t, "SELECT * FROM nodes WHERE id = $1 AND owner_id = $2", d.rebind("SELECT * FROM nodes WHERE id = ? AND owner_id = ?"))

	clause, args := d.inClause("parent_id", []string{"a", "b"}, []any{1})
	assert.Equal(t, "parent_id = ANY(?)", clause)
	assert.Len(t, args, 2)

	clause, args = sqliteDialect{}.inClause("id", []string{"a", "b"}, nil)
	assert.Equal(t, "id IN (?,?)", clause)
	assert.Equal(t, []any{"a", "b"}, args)
}

func TestSQLiteRepositoryIsMigrated(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "tree.db"))
	require.NoError(t, repo.Initialize(ctx))
	defer repo.Cleanup(ctx)

	version, dirty, err := migrations.Version(repo.DB(), repo.Dialect())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}
