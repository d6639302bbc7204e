package tree

import (
	"context"
	"fmt"

	"github.com/ammiranda/knowledge_tree/repository"
)

// Closure is the result of a descendant walk
type Closure struct {
	// IDs holds the seeds followed by every descendant in discovery order
	IDs []string
	// Layers is the number of child layers found below the seeds
	Layers int

	members map[string]struct{}
}

// Contains reports whether id is part of the closure
func (c *Closure) Contains(id string) bool {
	_, ok := c.members[id]
	return ok
}

// ResolveDescendants walks child edges breadth first from seeds and returns
// the deduplicated closure, seeds included. Each layer costs one
// GetChildrenOf call for all of its parents. Only ids not seen before are
// expanded. The walk fails with ErrMaxDepthExceeded when it goes more than
// maxDepth layers down, or when the parent links inside the closure loop.
func ResolveDescendants(ctx context.Context, store repository.Store, seeds []string, maxDepth int) (*Closure, error) {
	closure := &Closure{members: make(map[string]struct{}, len(seeds))}
	for _, id := range seeds {
		if id == "" {
			continue
		}
		if _, ok := closure.members[id]; ok {
			continue
		}
		closure.members[id] = struct{}{}
		closure.IDs = append(closure.IDs, id)
	}

	// parentOf records every child edge seen, including edges that lead back
	// into the visited set
	parentOf := make(map[string]string)
	frontier := append([]string(nil), closure.IDs...)

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		children, err := store.GetChildrenOf(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("error loading children: %w", err)
		}

		var next []string
		for _, child := range children {
			if child.ParentID != nil {
				parentOf[child.ID] = *child.ParentID
			}
			if _, seen := closure.members[child.ID]; seen {
				continue
			}
			closure.members[child.ID] = struct{}{}
			closure.IDs = append(closure.IDs, child.ID)
			next = append(next, child.ID)
		}
		if len(next) == 0 {
			break
		}

		closure.Layers++
		if closure.Layers > maxDepth {
			return nil, fmt.Errorf("%w: descendants of %v go deeper than %d layers", ErrMaxDepthExceeded, seeds, maxDepth)
		}
		frontier = next
	}

	if err := checkParentChains(closure, parentOf, maxDepth); err != nil {
		return nil, err
	}
	return closure, nil
}

// checkParentChains follows parent links inside the closure from every
// member. In a forest each chain leaves the closure within maxDepth steps;
// a chain that does not is a loop.
func checkParentChains(closure *Closure, parentOf map[string]string, maxDepth int) error {
	depth := make(map[string]int, len(closure.IDs))
	var path []string

	for _, start := range closure.IDs {
		path = path[:0]
		base := -1
		cur := start
		for {
			if d, ok := depth[cur]; ok {
				base = d
				break
			}
			path = append(path, cur)
			if len(path) > maxDepth+1 {
				return fmt.Errorf("%w: node %s is part of a parent cycle", ErrMaxDepthExceeded, start)
			}
			parent, ok := parentOf[cur]
			if !ok || !closure.Contains(parent) {
				break
			}
			cur = parent
		}
		for i := len(path) - 1; i >= 0; i-- {
			base++
			depth[path[i]] = base
		}
	}
	return nil
}
