package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/ammiranda/knowledge_tree/auth"
	"github.com/ammiranda/knowledge_tree/handlers"
	"github.com/ammiranda/knowledge_tree/models"
	"github.com/ammiranda/knowledge_tree/tree"
)

// Handler adapts API Gateway proxy events to the tree API
type Handler struct {
	api *handlers.TreeHandler
}

// NewHandler creates a new Handler over api
func NewHandler(api *handlers.TreeHandler) *Handler {
	return &Handler{api: api}
}

type route struct {
	method   string
	segments []string
	mutation bool
	serve    func(h *Handler, ctx context.Context, params map[string]string, body string) (int, any, error)
}

var routes = []route{
	{method: http.MethodGet, segments: []string{"api", "lessons", ":ownerId", "tree"}, serve: (*Handler).getTree},
	{method: http.MethodGet, segments: []string{"api", "nodes", ":id"}, serve: (*Handler).getNode},
	{method: http.MethodPost, segments: []string{"api", "nodes"}, mutation: true, serve: (*Handler).createNode},
	{method: http.MethodPost, segments: []string{"api", "nodes", "bulk"}, mutation: true, serve: (*Handler).bulk},
	{method: http.MethodPost, segments: []string{"api", "nodes", ":id", "reorder"}, mutation: true, serve: (*Handler).reorder},
}

// match returns the path parameters when path fits segments
func match(segments []string, path string) (map[string]string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != len(segments) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			if parts[i] == "" {
				return nil, false
			}
			params[seg[1:]] = parts[i]
			continue
		}
		if seg != parts[i] {
			return nil, false
		}
	}
	return params, true
}

// header looks name up case-insensitively
func header(request events.APIGatewayProxyRequest, name string) string {
	for k, v := range request.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Handle processes API Gateway events
func (h *Handler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	for _, rt := range routes {
		if rt.method != request.HTTPMethod {
			continue
		}
		params, ok := match(rt.segments, request.Path)
		if !ok {
			continue
		}
		if rt.mutation {
			if err := auth.Check(ctx, h.api.Authorizer(), header(request, auth.RoleHeader)); err != nil {
				return respondError(err), nil
			}
		}
		status, body, err := rt.serve(h, ctx, params, request.Body)
		if err != nil {
			return respondError(err), nil
		}
		return respond(status, body), nil
	}

	return respond(http.StatusNotFound, map[string]string{"error": "Not found"}), nil
}

func respond(status int, body any) events.APIGatewayProxyResponse {
	data, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"failed to marshal response"}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}
}

func respondError(err error) events.APIGatewayProxyResponse {
	return respond(handlers.StatusCode(err), handlers.ErrorBody(err))
}

func decodeBody(body string, v any) error {
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", tree.ErrValidation, err)
	}
	return nil
}

func (h *Handler) getTree(ctx context.Context, params map[string]string, body string) (int, any, error) {
	resp, err := h.api.Tree(ctx, params["ownerId"])
	return http.StatusOK, resp, err
}

func (h *Handler) getNode(ctx context.Context, params map[string]string, body string) (int, any, error) {
	n, err := h.api.Node(ctx, params["id"])
	return http.StatusOK, n, err
}

func (h *Handler) createNode(ctx context.Context, params map[string]string, body string) (int, any, error) {
	var req models.CreateNodeRequest
	if err := decodeBody(body, &req); err != nil {
		return 0, nil, err
	}
	n, err := h.api.Create(ctx, &req)
	return http.StatusCreated, n, err
}

func (h *Handler) reorder(ctx context.Context, params map[string]string, body string) (int, any, error) {
	var req models.ReorderRequest
	if err := decodeBody(body, &req); err != nil {
		return 0, nil, err
	}
	n, err := h.api.Reorder(ctx, params["id"], &req)
	return http.StatusOK, n, err
}

func (h *Handler) bulk(ctx context.Context, params map[string]string, body string) (int, any, error) {
	var req models.BulkOperationRequest
	if err := decodeBody(body, &req); err != nil {
		return 0, nil, err
	}
	result, err := h.api.Bulk(ctx, &req)
	return http.StatusOK, result, err
}
