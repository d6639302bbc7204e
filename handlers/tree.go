package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/ammiranda/knowledge_tree/auth"
	"github.com/ammiranda/knowledge_tree/cache"
	"github.com/ammiranda/knowledge_tree/models"
	"github.com/ammiranda/knowledge_tree/tree"
)

// TreeHandler serves the knowledge tree API. The transport-neutral methods
// (Tree, Node, Create, Reorder, Bulk) are shared with the Lambda surface.
type TreeHandler struct {
	engine *tree.Engine
	authz  auth.Authorizer
	logger *slog.Logger

	// collapses concurrent cache misses for one owner into a single build
	builds singleflight.Group
}

// NewTreeHandler creates a new TreeHandler instance
func NewTreeHandler(engine *tree.Engine, authz auth.Authorizer, logger *slog.Logger) *TreeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeHandler{
		engine: engine,
		authz:  authz,
		logger: logger,
	}
}

// Authorizer returns the mutation authorizer
func (h *TreeHandler) Authorizer() auth.Authorizer {
	return h.authz
}

// Engine returns the tree engine behind the handler
func (h *TreeHandler) Engine() *tree.Engine {
	return h.engine
}

// RegisterRoutes mounts the API under r
func (h *TreeHandler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	{
		api.GET("/lessons/:ownerId/tree", h.GetTree)
		api.GET("/nodes/:id", h.GetNode)

		mutations := api.Group("", auth.RequireMutation(h.authz))
		mutations.POST("/nodes", h.CreateNode)
		mutations.POST("/nodes/bulk", h.BulkOperation)
		mutations.POST("/nodes/:id/reorder", h.ReorderNode)
	}
}

// StatusCode maps an engine error to its HTTP status
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, tree.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, tree.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, tree.ErrNotFound), errors.Is(err, tree.ErrParentNotFound):
		return http.StatusNotFound
	case errors.Is(err, tree.ErrCycleDetected), errors.Is(err, tree.ErrMaxDepthExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON body of every error response
func ErrorBody(err error) gin.H {
	msg := err.Error()
	if StatusCode(err) == http.StatusInternalServerError {
		// storage details stay in the log
		msg = "internal error"
	}
	return gin.H{"error": msg, "kind": tree.ErrorKind(err)}
}

func (h *TreeHandler) fail(c *gin.Context, err error) {
	if StatusCode(err) == http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(StatusCode(err), ErrorBody(err))
}

func invalidRequest(err error) error {
	return fmt.Errorf("%w: %s", tree.ErrValidation, err.Error())
}

// Tree returns the built tree of ownerID, from cache when possible
func (h *TreeHandler) Tree(ctx context.Context, ownerID string) (*models.TreeResponse, error) {
	if cached, found := cache.GetTree(ctx, ownerID); found {
		return cached, nil
	}

	// the shared build outlives any single caller; each caller stops
	// waiting when its own context ends
	ch := h.builds.DoChan(ownerID, func() (any, error) {
		buildCtx := context.WithoutCancel(ctx)
		resp, err := h.engine.Tree(buildCtx, ownerID)
		if err != nil {
			return nil, err
		}
		cache.SetTree(buildCtx, ownerID, resp)
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.TreeResponse), nil
	}
}

// Node returns a single node
func (h *TreeHandler) Node(ctx context.Context, id string) (*models.Node, error) {
	n, err := h.engine.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.NewNode(n), nil
}

// Create validates req and creates the node
func (h *TreeHandler) Create(ctx context.Context, req *models.CreateNodeRequest) (*models.Node, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidRequest(err)
	}

	n, err := h.engine.CreateNode(ctx, tree.NewNode{
		OwnerID:     req.OwnerID,
		Title:       req.Title,
		ParentID:    req.ParentID,
		Order:       req.Order,
		IsPublished: req.IsPublished,
		PositionX:   req.PositionX,
		PositionY:   req.PositionY,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	h.invalidateOwner(ctx, n.OwnerID)
	return models.NewNode(n), nil
}

// Reorder validates req and moves node id
func (h *TreeHandler) Reorder(ctx context.Context, id string, req *models.ReorderRequest) (*models.Node, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidRequest(err)
	}

	n, err := h.engine.Reorder(ctx, id, req.NewParentID, *req.NewOrder)
	if err != nil {
		return nil, err
	}

	h.invalidateOwner(ctx, n.OwnerID)
	return models.NewNode(n), nil
}

// Bulk validates req and runs the bulk operation
func (h *TreeHandler) Bulk(ctx context.Context, req *models.BulkOperationRequest) (*models.BulkResult, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidRequest(err)
	}

	result, err := h.engine.Bulk(ctx, tree.Operation(req.Operation), req.NodeIDs)
	if err != nil {
		return nil, err
	}

	// the id set may span owners
	if tree.Operation(req.Operation) != tree.OperationExport {
		if err := cache.InvalidateCache(ctx); err != nil {
			h.logger.WarnContext(ctx, "cache invalidation failed", "operation", req.Operation, "error", err)
		}
	}
	return result, nil
}

// invalidateOwner drops the cached tree of ownerID. A failure is logged and
// does not fail the mutation that already committed.
func (h *TreeHandler) invalidateOwner(ctx context.Context, ownerID string) {
	if err := cache.InvalidateTree(ctx, ownerID); err != nil {
		h.logger.WarnContext(ctx, "cache invalidation failed", "owner_id", ownerID, "error", err)
	}
}

// GetTree returns the tree of one lesson
func (h *TreeHandler) GetTree(c *gin.Context) {
	resp, err := h.Tree(c.Request.Context(), c.Param("ownerId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetNode returns one node
func (h *TreeHandler) GetNode(c *gin.Context) {
	n, err := h.Node(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// CreateNode creates a new node in the tree
func (h *TreeHandler) CreateNode(c *gin.Context) {
	var req models.CreateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidRequest(err))
		return
	}

	n, err := h.Create(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

// ReorderNode moves a node under a new parent and position
func (h *TreeHandler) ReorderNode(c *gin.Context) {
	var req models.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidRequest(err))
		return
	}

	n, err := h.Reorder(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// BulkOperation runs publish, unpublish, delete or export over a node set
func (h *TreeHandler) BulkOperation(c *gin.Context) {
	var req models.BulkOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidRequest(err))
		return
	}

	result, err := h.Bulk(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
