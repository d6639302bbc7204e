package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect captures the differences between the SQL backends
type dialect interface {
	// rebind turns '?' placeholders into the driver's native form
	rebind(query string) string
	// inClause renders "column IN ids" and appends its arguments
	inClause(column string, ids []string, args []any) (string, []any)
	// batchSize is the largest id set sent in one statement
	batchSize() int
}

type postgresDialect struct{}

func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (postgresDialect) inClause(column string, ids []string, args []any) (string, []any) {
	return column + " = ANY(?)", append(args, pq.Array(ids))
}

func (postgresDialect) batchSize() int { return 10000 }

type sqliteDialect struct{}

func (sqliteDialect) rebind(query string) string { return query }

func (sqliteDialect) inClause(column string, ids []string, args []any) (string, []any) {
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	for _, id := range ids {
		args = append(args, id)
	}
	return column + " IN (" + marks + ")", args
}

func (sqliteDialect) batchSize() int { return 500 }

const nodeColumns = "id, owner_id, parent_id, title, level, sort_order, is_published, position_x, position_y, metadata, created_at, updated_at"

// sqlStore implements Store over database/sql for any dialect
type sqlStore struct {
	q       sqlQuerier
	dialect dialect
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) ([]*Node, error) {
	rows, err := s.q.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return nodes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var (
		node     Node
		parentID sql.NullString
		posX     sql.NullFloat64
		posY     sql.NullFloat64
		metadata []byte
	)
	err := row.Scan(&node.ID, &node.OwnerID, &parentID, &node.Title, &node.Level, &node.Order,
		&node.IsPublished, &posX, &posY, &metadata, &node.CreatedAt, &node.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("error scanning node: %w", err)
	}
	if parentID.Valid {
		node.ParentID = &parentID.String
	}
	if posX.Valid {
		node.PositionX = &posX.Float64
	}
	if posY.Valid {
		node.PositionY = &posY.Float64
	}
	if len(metadata) > 0 {
		node.Metadata = metadata
	}
	return &node, nil
}

// GetNode retrieves a node by ID
func (s *sqlStore) GetNode(ctx context.Context, id string) (*Node, error) {
	row := s.q.QueryRowContext(ctx, s.dialect.rebind("SELECT "+nodeColumns+" FROM nodes WHERE id = ?"), id)
	return scanNode(row)
}

// GetNodes retrieves the nodes with the given IDs in request order
func (s *sqlStore) GetNodes(ctx context.Context, ids []string) ([]*Node, error) {
	ids = uniqueIDs(ids)
	byID := make(map[string]*Node, len(ids))
	for _, batch := range chunk(ids, s.dialect.batchSize()) {
		clause, args := s.dialect.inClause("id", batch, nil)
		nodes, err := s.query(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE "+clause, args...)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			byID[n.ID] = n
		}
	}
	result := make([]*Node, 0, len(byID))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			result = append(result, n)
		}
	}
	return result, nil
}

// GetChildrenOf retrieves the children of every given parent
func (s *sqlStore) GetChildrenOf(ctx context.Context, parentIDs []string) ([]*Node, error) {
	parentIDs = uniqueIDs(parentIDs)
	var result []*Node
	for _, batch := range chunk(parentIDs, s.dialect.batchSize()) {
		clause, args := s.dialect.inClause("parent_id", batch, nil)
		nodes, err := s.query(ctx,
			"SELECT "+nodeColumns+" FROM nodes WHERE "+clause+" ORDER BY parent_id, sort_order, id", args...)
		if err != nil {
			return nil, err
		}
		result = append(result, nodes...)
	}
	return result, nil
}

// GetNodesByOwner retrieves the flat node list of one owner
func (s *sqlStore) GetNodesByOwner(ctx context.Context, ownerID string) ([]*Node, error) {
	return s.query(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE owner_id = ? ORDER BY level, sort_order, id", ownerID)
}

// CreateNodes inserts the given nodes
func (s *sqlStore) CreateNodes(ctx context.Context, nodes []*Node) error {
	query := s.dialect.rebind("INSERT INTO nodes (" + nodeColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	now := time.Now().UTC()
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			return ErrInvalidInput
		}
		created := n.CreatedAt
		if created.IsZero() {
			created = now
		}
		var metadata sql.NullString
		if len(n.Metadata) > 0 {
			metadata = sql.NullString{String: string(n.Metadata), Valid: true}
		}
		_, err := s.q.ExecContext(ctx, query,
			n.ID, n.OwnerID, n.ParentID, n.Title, n.Level, n.Order, n.IsPublished,
			n.PositionX, n.PositionY, metadata, created, now,
		)
		if err != nil {
			return fmt.Errorf("error creating node %s: %w", n.ID, err)
		}
	}
	return nil
}

// UpdateNodes applies patch to every node in ids
func (s *sqlStore) UpdateNodes(ctx context.Context, ids []string, patch NodePatch) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 || patch.IsEmpty() {
		return 0, nil
	}

	var (
		sets []string
		base []any
	)
	if patch.SetParent {
		sets = append(sets, "parent_id = ?")
		base = append(base, patch.ParentID)
	}
	if patch.Order != nil {
		sets = append(sets, "sort_order = ?")
		base = append(base, *patch.Order)
	}
	if patch.Level != nil {
		sets = append(sets, "level = ?")
		base = append(base, *patch.Level)
	}
	if patch.IsPublished != nil {
		sets = append(sets, "is_published = ?")
		base = append(base, *patch.IsPublished)
	}
	sets = append(sets, "updated_at = ?")
	base = append(base, time.Now().UTC())

	var affected int64
	for _, batch := range chunk(ids, s.dialect.batchSize()) {
		args := append([]any(nil), base...)
		clause, args := s.dialect.inClause("id", batch, args)
		result, err := s.q.ExecContext(ctx,
			s.dialect.rebind("UPDATE nodes SET "+strings.Join(sets, ", ")+" WHERE "+clause), args...)
		if err != nil {
			return affected, fmt.Errorf("error updating nodes: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return affected, fmt.Errorf("error getting rows affected: %w", err)
		}
		affected += rows
	}
	return affected, nil
}

// DeleteNodes removes the given nodes
func (s *sqlStore) DeleteNodes(ctx context.Context, ids []string) (int64, error) {
	ids = uniqueIDs(ids)
	var affected int64
	for _, batch := range chunk(ids, s.dialect.batchSize()) {
		clause, args := s.dialect.inClause("id", batch, nil)
		result, err := s.q.ExecContext(ctx, s.dialect.rebind("DELETE FROM nodes WHERE "+clause), args...)
		if err != nil {
			return affected, fmt.Errorf("error deleting nodes: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return affected, fmt.Errorf("error getting rows affected: %w", err)
		}
		affected += rows
	}
	return affected, nil
}

// withSQLTransaction runs fn inside a database/sql transaction
func withSQLTransaction(ctx context.Context, db *sql.DB, d dialect, opts *sql.TxOptions, fn func(ctx context.Context, tx Store) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqlStore{q: tx, dialect: d}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func chunk(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	return append(out, ids)
}
