package models

import (
	"encoding/json"
	"time"

	"github.com/ammiranda/knowledge_tree/repository"
)

// Node is the flat wire form of a knowledge tree node
type Node struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	ParentID    *string         `json:"parentId"`
	Title       string          `json:"title"`
	Level       int             `json:"level"`
	Order       int             `json:"order"`
	IsPublished bool            `json:"isPublished"`
	PositionX   *float64        `json:"positionX,omitempty"`
	PositionY   *float64        `json:"positionY,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TreeNode is a node carrying its ordered children
type TreeNode struct {
	Node
	Children []*TreeNode `json:"children"`
}

// NewNode converts a repository node into its wire form
func NewNode(n *repository.Node) *Node {
	return &Node{
		ID:          n.ID,
		OwnerID:     n.OwnerID,
		ParentID:    n.ParentID,
		Title:       n.Title,
		Level:       n.Level,
		Order:       n.Order,
		IsPublished: n.IsPublished,
		PositionX:   n.PositionX,
		PositionY:   n.PositionY,
		Metadata:    json.RawMessage(n.Metadata),
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

// NewNodes converts a slice of repository nodes
func NewNodes(nodes []*repository.Node) []*Node {
	result := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		result = append(result, NewNode(n))
	}
	return result
}

// NewTreeNode creates a tree node without children
func NewTreeNode(n *repository.Node) *TreeNode {
	return &TreeNode{
		Node:     *NewNode(n),
		Children: make([]*TreeNode, 0),
	}
}

// AddChild adds a child node to the current node
func (n *TreeNode) AddChild(child *TreeNode) {
	n.Children = append(n.Children, child)
}

// TreeMetadata summarizes a forest
type TreeMetadata struct {
	TotalNodes int `json:"totalNodes"`
	MaxDepth   int `json:"maxDepth"`
	RootCount  int `json:"rootCount"`
}

// TreeResponse is the answer to a tree read
type TreeResponse struct {
	OwnerID  string       `json:"ownerId"`
	Tree     []*TreeNode  `json:"tree"`
	Nodes    []*Node      `json:"nodes"`
	Metadata TreeMetadata `json:"metadata"`
}

// BulkResult is the answer to a bulk operation. Nodes and Count are only
// populated by export.
type BulkResult struct {
	Operation     string  `json:"operation"`
	AffectedCount int64   `json:"affectedCount"`
	Nodes         []*Node `json:"nodes,omitempty"`
	Count         int     `json:"count,omitempty"`
}

// MarshalJSON always writes nodes and count for an export, even when it
// found nothing
func (r BulkResult) MarshalJSON() ([]byte, error) {
	type plain BulkResult
	if r.Operation != "export" {
		return json.Marshal(plain(r))
	}

	nodes := r.Nodes
	if nodes == nil {
		nodes = []*Node{}
	}
	return json.Marshal(struct {
		Operation     string  `json:"operation"`
		AffectedCount int64   `json:"affectedCount"`
		Nodes         []*Node `json:"nodes"`
		Count         int     `json:"count"`
	}{r.Operation, r.AffectedCount, nodes, r.Count})
}
