package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket layout:
//
//	nodes                 id -> JSON node
//	children/<parentID>   childID -> nil
//	owners/<ownerID>      id -> nil
var (
	bucketNodes    = []byte("nodes")
	bucketChildren = []byte("children")
	bucketOwners   = []byte("owners")
)

// BoltRepository implements Repository on an embedded bbolt file. Every
// write transaction is serialized by bbolt itself.
type BoltRepository struct {
	db     *bolt.DB
	dbPath string
}

// NewBoltRepository creates a repository stored at dbPath
func NewBoltRepository(dbPath string) *BoltRepository {
	return &BoltRepository{dbPath: dbPath}
}

// Initialize opens the file and creates the buckets
func (r *BoltRepository) Initialize(ctx context.Context) error {
	if dir := filepath.Dir(r.dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create bolt directory: %w", err)
		}
	}

	db, err := bolt.Open(r.dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketNodes, bucketChildren, bucketOwners} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return err
	}

	r.db = db
	return nil
}

// Cleanup closes the database file
func (r *BoltRepository) Cleanup(ctx context.Context) error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithTransaction runs fn inside one bbolt read-write transaction
func (r *BoltRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		if err := fn(ctx, &boltStore{tx: tx}); err != nil {
			return err
		}
		return ctx.Err()
	})
}

func (r *BoltRepository) view(fn func(s *boltStore) error) error {
	return r.db.View(func(tx *bolt.Tx) error {
		return fn(&boltStore{tx: tx})
	})
}

func (r *BoltRepository) update(fn func(s *boltStore) error) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltStore{tx: tx})
	})
}

// GetNode retrieves a node by ID
func (r *BoltRepository) GetNode(ctx context.Context, id string) (node *Node, err error) {
	err = r.view(func(s *boltStore) error {
		node, err = s.GetNode(ctx, id)
		return err
	})
	return node, err
}

// GetNodes retrieves the nodes with the given IDs
func (r *BoltRepository) GetNodes(ctx context.Context, ids []string) (nodes []*Node, err error) {
	err = r.view(func(s *boltStore) error {
		nodes, err = s.GetNodes(ctx, ids)
		return err
	})
	return nodes, err
}

// GetChildrenOf retrieves the children of every given parent
func (r *BoltRepository) GetChildrenOf(ctx context.Context, parentIDs []string) (nodes []*Node, err error) {
	err = r.view(func(s *boltStore) error {
		nodes, err = s.GetChildrenOf(ctx, parentIDs)
		return err
	})
	return nodes, err
}

// GetNodesByOwner retrieves the flat node list of one owner
func (r *BoltRepository) GetNodesByOwner(ctx context.Context, ownerID string) (nodes []*Node, err error) {
	err = r.view(func(s *boltStore) error {
		nodes, err = s.GetNodesByOwner(ctx, ownerID)
		return err
	})
	return nodes, err
}

// CreateNodes stores new nodes
func (r *BoltRepository) CreateNodes(ctx context.Context, nodes []*Node) error {
	return r.update(func(s *boltStore) error {
		return s.CreateNodes(ctx, nodes)
	})
}

// UpdateNodes applies patch to the given nodes
func (r *BoltRepository) UpdateNodes(ctx context.Context, ids []string, patch NodePatch) (affected int64, err error) {
	err = r.update(func(s *boltStore) error {
		affected, err = s.UpdateNodes(ctx, ids, patch)
		return err
	})
	return affected, err
}

// DeleteNodes removes the given nodes
func (r *BoltRepository) DeleteNodes(ctx context.Context, ids []string) (affected int64, err error) {
	err = r.update(func(s *boltStore) error {
		affected, err = s.DeleteNodes(ctx, ids)
		return err
	})
	return affected, err
}

// boltStore implements Store inside one bbolt transaction
type boltStore struct {
	tx *bolt.Tx
}

func (s *boltStore) load(id string) (*Node, error) {
	data := s.tx.Bucket(bucketNodes).Get([]byte(id))
	if data == nil {
		return nil, ErrNodeNotFound
	}
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to deserialize node %s: %w", id, err)
	}
	return &n, nil
}

func (s *boltStore) put(n *Node) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to serialize node %s: %w", n.ID, err)
	}
	return s.tx.Bucket(bucketNodes).Put([]byte(n.ID), data)
}

// link adds id to the index bucket parent/key
func (s *boltStore) link(parent []byte, key, id string) error {
	b, err := s.tx.Bucket(parent).CreateBucketIfNotExists([]byte(key))
	if err != nil {
		return err
	}
	return b.Put([]byte(id), []byte{})
}

// unlink removes id from the index bucket parent/key and drops the bucket once empty
func (s *boltStore) unlink(parent []byte, key, id string) error {
	root := s.tx.Bucket(parent)
	b := root.Bucket([]byte(key))
	if b == nil {
		return nil
	}
	if err := b.Delete([]byte(id)); err != nil {
		return err
	}
	if k, _ := b.Cursor().First(); k == nil {
		return root.DeleteBucket([]byte(key))
	}
	return nil
}

func (s *boltStore) members(parent []byte, key string) []string {
	b := s.tx.Bucket(parent).Bucket([]byte(key))
	if b == nil {
		return nil
	}
	var ids []string
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		ids = append(ids, string(k))
	}
	return ids
}

func (s *boltStore) GetNode(ctx context.Context, id string) (*Node, error) {
	return s.load(id)
}

func (s *boltStore) GetNodes(ctx context.Context, ids []string) ([]*Node, error) {
	var result []*Node
	for _, id := range uniqueIDs(ids) {
		n, err := s.load(id)
		if errors.Is(err, ErrNodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, nil
}

func (s *boltStore) GetChildrenOf(ctx context.Context, parentIDs []string) ([]*Node, error) {
	var result []*Node
	for _, parentID := range uniqueIDs(parentIDs) {
		for _, id := range s.members(bucketChildren, parentID) {
			n, err := s.load(id)
			if err != nil {
				return nil, err
			}
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if *result[i].ParentID != *result[j].ParentID {
			return *result[i].ParentID < *result[j].ParentID
		}
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *boltStore) GetNodesByOwner(ctx context.Context, ownerID string) ([]*Node, error) {
	var result []*Node
	for _, id := range s.members(bucketOwners, ownerID) {
		n, err := s.load(id)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Level != result[j].Level {
			return result[i].Level < result[j].Level
		}
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *boltStore) CreateNodes(ctx context.Context, nodes []*Node) error {
	now := time.Now().UTC()
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			return ErrInvalidInput
		}
		if s.tx.Bucket(bucketNodes).Get([]byte(n.ID)) != nil {
			return ErrDuplicateNode
		}

		c := n.Clone()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		if err := s.put(c); err != nil {
			return err
		}
		if err := s.link(bucketOwners, c.OwnerID, c.ID); err != nil {
			return fmt.Errorf("failed to index owner of %s: %w", c.ID, err)
		}
		if c.ParentID != nil {
			if err := s.link(bucketChildren, *c.ParentID, c.ID); err != nil {
				return fmt.Errorf("failed to index parent of %s: %w", c.ID, err)
			}
		}
	}
	return nil
}

func (s *boltStore) UpdateNodes(ctx context.Context, ids []string, patch NodePatch) (int64, error) {
	var affected int64
	now := time.Now().UTC()
	for _, id := range uniqueIDs(ids) {
		n, err := s.load(id)
		if errors.Is(err, ErrNodeNotFound) {
			continue
		}
		if err != nil {
			return affected, err
		}

		oldParent := n.ParentID
		patch.Apply(n)
		n.UpdatedAt = now

		if patch.SetParent {
			if oldParent != nil {
				if err := s.unlink(bucketChildren, *oldParent, id); err != nil {
					return affected, err
				}
			}
			if n.ParentID != nil {
				if err := s.link(bucketChildren, *n.ParentID, id); err != nil {
					return affected, err
				}
			}
		}
		if err := s.put(n); err != nil {
			return affected, err
		}
		affected++
	}
	return affected, nil
}

func (s *boltStore) DeleteNodes(ctx context.Context, ids []string) (int64, error) {
	var affected int64
	for _, id := range uniqueIDs(ids) {
		n, err := s.load(id)
		if errors.Is(err, ErrNodeNotFound) {
			continue
		}
		if err != nil {
			return affected, err
		}
		if err := s.tx.Bucket(bucketNodes).Delete([]byte(id)); err != nil {
			return affected, err
		}
		if err := s.unlink(bucketOwners, n.OwnerID, id); err != nil {
			return affected, err
		}
		if n.ParentID != nil {
			if err := s.unlink(bucketChildren, *n.ParentID, id); err != nil {
				return affected, err
			}
		}
		affected++
	}
	return affected, nil
}
