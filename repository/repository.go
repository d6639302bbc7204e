package repository

import (
	"context"
	"errors"
	"time"
)

// Node represents a node of a knowledge tree as it is persisted
type Node struct {
	ID          string    // Unique identifier (ULID)
	OwnerID     string    // Owning context, e.g. the lesson the map belongs to
	ParentID    *string   // Optional reference to the parent node's ID
	Title       string    // Display title
	Level       int       // Cached depth, 0 for roots
	Order       int       // Sibling ordering key
	IsPublished bool      // Visibility flag
	PositionX   *float64  // Optional layout coordinate
	PositionY   *float64  // Optional layout coordinate
	Metadata    []byte    // Opaque JSON payload
	CreatedAt   time.Time // Set on create
	UpdatedAt   time.Time // Touched on every update
}

// Clone returns a deep copy of the node
func (n *Node) Clone() *Node {
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	if n.PositionX != nil {
		x := *n.PositionX
		c.PositionX = &x
	}
	if n.PositionY != nil {
		y := *n.PositionY
		c.PositionY = &y
	}
	if n.Metadata != nil {
		c.Metadata = append([]byte(nil), n.Metadata...)
	}
	return &c
}

// NodePatch describes the fields UpdateNodes writes. Nil fields are left untouched.
type NodePatch struct {
	// SetParent must be true for ParentID to be applied; a nil ParentID then clears the parent.
	SetParent   bool
	ParentID    *string
	Order       *int
	Level       *int
	IsPublished *bool
}

// IsEmpty reports whether the patch would not change anything
func (p NodePatch) IsEmpty() bool {
	return !p.SetParent && p.Order == nil && p.Level == nil && p.IsPublished == nil
}

// Apply writes the patch onto n
func (p NodePatch) Apply(n *Node) {
	if p.SetParent {
		if p.ParentID == nil {
			n.ParentID = nil
		} else {
			id := *p.ParentID
			n.ParentID = &id
		}
	}
	if p.Order != nil {
		n.Order = *p.Order
	}
	if p.Level != nil {
		n.Level = *p.Level
	}
	if p.IsPublished != nil {
		n.IsPublished = *p.IsPublished
	}
}

// Store is the set of node operations available both on a repository and
// inside a transaction scope.
type Store interface {
	// GetNode retrieves a node by its ID.
	// Returns ErrNodeNotFound if no node exists with the given ID.
	GetNode(ctx context.Context, id string) (*Node, error)

	// GetNodes retrieves the nodes with the given IDs. Unknown IDs are skipped.
	GetNodes(ctx context.Context, ids []string) ([]*Node, error)

	// GetChildrenOf retrieves every node whose parent is one of parentIDs,
	// in a single round trip.
	GetChildrenOf(ctx context.Context, parentIDs []string) ([]*Node, error)

	// GetNodesByOwner retrieves the flat node list of one owner.
	GetNodesByOwner(ctx context.Context, ownerID string) ([]*Node, error)

	// CreateNodes inserts the given nodes. IDs must already be assigned.
	CreateNodes(ctx context.Context, nodes []*Node) error

	// UpdateNodes applies patch to every node in ids and returns the number
	// of nodes changed.
	UpdateNodes(ctx context.Context, ids []string, patch NodePatch) (int64, error)

	// DeleteNodes removes the given nodes and returns the number removed.
	// It does not follow parent links.
	DeleteNodes(ctx context.Context, ids []string) (int64, error)
}

// Repository defines the interface for data access operations.
// It provides methods for managing knowledge tree nodes in a persistent storage.
type Repository interface {
	Store

	// Initialize performs any necessary setup for the repository.
	// This may include establishing database connections or running migrations.
	Initialize(ctx context.Context) error

	// Cleanup performs any necessary cleanup operations for the repository.
	Cleanup(ctx context.Context) error

	// WithTransaction runs fn inside one atomic scope. The Store handed to fn
	// must be used for every read and write of the unit of work. The scope is
	// committed only if fn returns nil and rolled back in full otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Common errors
var (
	// ErrNodeNotFound is returned when a requested node does not exist
	ErrNodeNotFound = errors.New("node not found")
	// ErrInvalidInput is returned when the input parameters are invalid
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateNode is returned when a node with the same ID already exists
	ErrDuplicateNode = errors.New("duplicate node id")
)

// uniqueIDs drops empty and repeated ids while keeping first-seen order
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
