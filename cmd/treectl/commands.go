package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ammiranda/knowledge_tree/handlers"
	"github.com/ammiranda/knowledge_tree/migrations"
	"github.com/ammiranda/knowledge_tree/models"
	"github.com/ammiranda/knowledge_tree/repository"
	"github.com/ammiranda/knowledge_tree/tree"
)

func newMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQL schema",
	}

	// sqlRepo opens the configured repository, which applies pending
	// migrations, and hands fn its connection
	sqlRepo := func(cmd *cobra.Command, fn func(repo repository.SQLRepository) error) error {
		repo, cfg, err := opts.openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Cleanup(cmd.Context())

		typed, ok := repo.(repository.SQLRepository)
		if !ok {
			return fmt.Errorf("storage driver %s has no SQL schema", cfg.StorageDriver)
		}
		return fn(typed)
	}

	printVersion := func(cmd *cobra.Command, repo repository.SQLRepository) error {
		version, dirty, err := migrations.Version(repo.DB(), repo.Dialect())
		if err != nil {
			return err
		}
		return opts.print(cmd.OutOrStdout(), map[string]any{"version": version, "dirty": dirty})
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return sqlRepo(cmd, func(repo repository.SQLRepository) error {
					return printVersion(cmd, repo)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return sqlRepo(cmd, func(repo repository.SQLRepository) error {
					if err := migrations.Down(repo.DB(), repo.Dialect()); err != nil {
						return err
					}
					return printVersion(cmd, repo)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return sqlRepo(cmd, func(repo repository.SQLRepository) error {
					return printVersion(cmd, repo)
				})
			},
		},
	)
	return cmd
}

func newTreeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <ownerId>",
		Short: "Print the tree of a lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAPI(cmd, func(ctx context.Context, api *handlers.TreeHandler) error {
				resp, err := api.Tree(ctx, args[0])
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), resp)
			})
		},
	}
}

func newGetCmd(opts *options) *cobra.Command {
	var descendants bool
	cmd := &cobra.Command{
		Use:   "get <nodeId>",
		Short: "Print a node, or the ids of its subtree with --descendants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAPI(cmd, func(ctx context.Context, api *handlers.TreeHandler) error {
				if descendants {
					closure, err := api.Engine().Descendants(ctx, args)
					if err != nil {
						return err
					}
					return opts.print(cmd.OutOrStdout(), map[string]any{"ids": closure.IDs, "layers": closure.Layers})
				}
				n, err := api.Node(ctx, args[0])
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), n)
			})
		},
	}
	cmd.Flags().BoolVar(&descendants, "descendants", false, "list the node and every descendant")
	return cmd
}

func newCreateCmd(opts *options) *cobra.Command {
	var (
		parentID  string
		order     int
		published bool
		metadata  string
	)
	cmd := &cobra.Command{
		Use:   "create <ownerId> <title>",
		Short: "Create a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &models.CreateNodeRequest{OwnerID: args[0], Title: args[1], IsPublished: published}
			if parentID != "" {
				req.ParentID = &parentID
			}
			if cmd.Flags().Changed("order") {
				req.Order = &order
			}
			if metadata != "" {
				if !json.Valid([]byte(metadata)) {
					return fmt.Errorf("%w: --metadata is not valid JSON", tree.ErrValidation)
				}
				req.Metadata = json.RawMessage(metadata)
			}
			return opts.withAPI(cmd, func(ctx context.Context, api *handlers.TreeHandler) error {
				n, err := api.Create(ctx, req)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), n)
			})
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "parent node id (root when empty)")
	cmd.Flags().IntVar(&order, "order", 0, "sibling position (appended when omitted)")
	cmd.Flags().BoolVar(&published, "published", false, "create the node published")
	cmd.Flags().StringVar(&metadata, "metadata", "", "JSON metadata")
	return cmd
}

func newReorderCmd(opts *options) *cobra.Command {
	var parentID string
	cmd := &cobra.Command{
		Use:   "reorder <nodeId> <order>",
		Short: "Move a node under --parent (or to the root) at a position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: order must be an integer", tree.ErrValidation)
			}
			req := &models.ReorderRequest{NewOrder: &order}
			if parentID != "" {
				req.NewParentID = &parentID
			}
			return opts.withAPI(cmd, func(ctx context.Context, api *handlers.TreeHandler) error {
				n, err := api.Reorder(ctx, args[0], req)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), n)
			})
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "new parent id (root when empty)")
	return cmd
}

func newBulkCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "bulk <publish|unpublish|delete|export> <nodeId>...",
		Short:     "Run a bulk operation over a node set",
		Args:      cobra.MinimumNArgs(2),
		ValidArgs: []string{"publish", "unpublish", "delete", "export"},
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := tree.ParseOperation(args[0])
			if err != nil {
				return err
			}
			req := &models.BulkOperationRequest{Operation: string(op), NodeIDs: args[1:]}
			return opts.withAPI(cmd, func(ctx context.Context, api *handlers.TreeHandler) error {
				result, err := api.Bulk(ctx, req)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), result)
			})
		},
	}
}
