package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ammiranda/knowledge_tree/models"
	"github.com/ammiranda/knowledge_tree/repository"
)

// DefaultMaxDepth is the depth ceiling used when none is configured
const DefaultMaxDepth = 100

var tracer = otel.Tracer("github.com/ammiranda/knowledge_tree/tree")

// Engine runs structural reads and mutations over a node repository. It
// holds no locks across calls; every multi-step mutation runs inside one
// repository transaction.
type Engine struct {
	repo     repository.Repository
	maxDepth int
	logger   *slog.Logger
	newID    func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithMaxDepth sets the depth ceiling
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIDGenerator replaces the ULID generator used for new nodes
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine creates an engine over repo
func NewEngine(repo repository.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
		newID:    func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxDepth returns the configured depth ceiling
func (e *Engine) MaxDepth() int {
	return e.maxDepth
}

// track opens a span for op and returns a function that records the outcome
// in the span, the metrics and the log
func (e *Engine) track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(err *error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "tree."+op, trace.WithAttributes(attrs...))

	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		kind := ErrorKind(err)
		elapsed := time.Since(start)

		operationTotal.WithLabelValues(op, kind).Inc()
		operationDuration.WithLabelValues(op).Observe(elapsed.Seconds())

		args := []any{"operation", op, "result", kind, "duration", elapsed}
		for _, a := range attrs {
			args = append(args, string(a.Key), a.Value.Emit())
		}

		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
			e.logger.DebugContext(ctx, "tree operation completed", args...)
		case errors.Is(err, ErrTransactionFailure):
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.ErrorContext(ctx, "tree operation failed", append(args, "error", err)...)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, kind)
			e.logger.WarnContext(ctx, "tree operation rejected", append(args, "error", err)...)
		}
		span.End()
	}
}

// withTransaction runs fn in one repository transaction and tags storage
// failures as ErrTransactionFailure
func (e *Engine) withTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return asTransactionFailure(e.repo.WithTransaction(ctx, fn))
}

// GetNode loads a single node
func (e *Engine) GetNode(ctx context.Context, id string) (node *repository.Node, err error) {
	ctx, done := e.track(ctx, "get_node", attribute.String("node.id", id))
	defer done(&err)

	if id == "" {
		return nil, validationErrorf("node id is required")
	}
	node, err = e.repo.GetNode(ctx, id)
	if err != nil {
		return nil, asTransactionFailure(notFound(err, ErrNotFound, id))
	}
	return node, nil
}

// Tree reads every node of an owner and builds its forest
func (e *Engine) Tree(ctx context.Context, ownerID string) (resp *models.TreeResponse, err error) {
	ctx, done := e.track(ctx, "tree", attribute.String("owner.id", ownerID))
	defer done(&err)

	if ownerID == "" {
		return nil, validationErrorf("owner id is required")
	}
	nodes, err := e.repo.GetNodesByOwner(ctx, ownerID)
	if err != nil {
		return nil, asTransactionFailure(err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes for owner %s", ErrNotFound, ownerID)
	}

	resp, err = BuildTreeResponse(ownerID, nodes, e.maxDepth)
	if err != nil {
		return nil, err
	}
	affectedNodes.WithLabelValues("tree").Observe(float64(len(nodes)))
	return resp, nil
}

// Descendants returns the closure of seeds, seeds included
func (e *Engine) Descendants(ctx context.Context, seeds []string) (closure *Closure, err error) {
	ctx, done := e.track(ctx, "descendants", attribute.Int("seed.count", len(seeds)))
	defer done(&err)

	closure, err = ResolveDescendants(ctx, e.repo, seeds, e.maxDepth)
	if err != nil {
		return nil, asTransactionFailure(err)
	}
	resolverLayers.Observe(float64(closure.Layers))
	return closure, nil
}
