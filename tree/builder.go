package tree

import (
	"fmt"
	"sort"

	"github.com/ammiranda/knowledge_tree/models"
	"github.com/ammiranda/knowledge_tree/repository"
)

// Forest is the nested form of one owner's flat node list
type Forest struct {
	Roots    []*models.TreeNode
	MaxDepth int // depth of the deepest node reached from a root, roots are 0
	Reached  int // nodes placed under some root
}

// BuildForest turns a flat, unordered node list into root trees with children
// sorted by order (ties broken by id). Children are indexed by parent id
// up front so construction is linear. Nodes whose parent chain never reaches
// a root are left out. A tree deeper than maxDepth fails with ErrMaxDepthExceeded.
func BuildForest(nodes []*repository.Node, maxDepth int) (*Forest, error) {
	children := make(map[string][]*repository.Node, len(nodes))
	var roots []*repository.Node
	for _, n := range nodes {
		if n.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		children[*n.ParentID] = append(children[*n.ParentID], n)
	}

	sortSiblings(roots)
	for _, siblings := range children {
		sortSiblings(siblings)
	}

	type frame struct {
		node  *models.TreeNode
		depth int
	}

	forest := &Forest{Roots: make([]*models.TreeNode, 0, len(roots))}
	placed := make(map[string]struct{}, len(nodes))
	var stack []frame

	for _, r := range roots {
		if _, dup := placed[r.ID]; dup {
			continue
		}
		placed[r.ID] = struct{}{}
		root := models.NewTreeNode(r)
		forest.Roots = append(forest.Roots, root)
		stack = append(stack[:0], frame{node: root})

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if top.depth > forest.MaxDepth {
				forest.MaxDepth = top.depth
			}

			kids := children[top.node.ID]
			if len(kids) == 0 {
				continue
			}
			if top.depth+1 > maxDepth {
				return nil, fmt.Errorf("%w: node %s is deeper than %d", ErrMaxDepthExceeded, kids[0].ID, maxDepth)
			}
			for _, k := range kids {
				if _, dup := placed[k.ID]; dup {
					continue
				}
				placed[k.ID] = struct{}{}
				child := models.NewTreeNode(k)
				top.node.AddChild(child)
				stack = append(stack, frame{node: child, depth: top.depth + 1})
			}
		}
	}

	forest.Reached = len(placed)
	return forest, nil
}

func sortSiblings(nodes []*repository.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Order != nodes[j].Order {
			return nodes[i].Order < nodes[j].Order
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// BuildTreeResponse builds the forest of one owner plus the flat list and
// summary metadata
func BuildTreeResponse(ownerID string, nodes []*repository.Node, maxDepth int) (*models.TreeResponse, error) {
	forest, err := BuildForest(nodes, maxDepth)
	if err != nil {
		return nil, err
	}
	return &models.TreeResponse{
		OwnerID: ownerID,
		Tree:    forest.Roots,
		Nodes:   models.NewNodes(nodes),
		Metadata: models.TreeMetadata{
			TotalNodes: len(nodes),
			MaxDepth:   forest.MaxDepth,
			RootCount:  len(forest.Roots),
		},
	}, nil
}
