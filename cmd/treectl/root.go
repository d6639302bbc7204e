package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ammiranda/knowledge_tree/auth"
	"github.com/ammiranda/knowledge_tree/cache"
	"github.com/ammiranda/knowledge_tree/config"
	"github.com/ammiranda/knowledge_tree/handlers"
	"github.com/ammiranda/knowledge_tree/repository"
	"github.com/ammiranda/knowledge_tree/tree"
)

// options are the persistent flags shared by every command
type options struct {
	driver     string
	sqlitePath string
	boltPath   string
	maxDepth   int
	output     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "treectl",
		Short:         "Inspect and restructure knowledge trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "json" && opts.output != "yaml" {
				return fmt.Errorf("unknown output format %q", opts.output)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.driver, "driver", "", "storage driver: postgres, sqlite, bolt or memory (default from STORAGE_DRIVER)")
	flags.StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite database file")
	flags.StringVar(&opts.boltPath, "bolt-path", "", "bbolt database file")
	flags.IntVar(&opts.maxDepth, "max-depth", 0, "depth ceiling (default from MAX_TREE_DEPTH)")
	flags.StringVarP(&opts.output, "output", "o", "json", "output format: json or yaml")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log engine operations to stderr")

	root.AddCommand(
		newMigrateCmd(opts),
		newTreeCmd(opts),
		newGetCmd(opts),
		newCreateCmd(opts),
		newReorderCmd(opts),
		newBulkCmd(opts),
	)
	return root
}

// appConfig loads the environment configuration and applies flag overrides
func (o *options) appConfig(ctx context.Context) (*config.AppConfig, config.Provider, error) {
	provider := config.NewEnvProvider("")
	cfg, err := config.GetAppConfig(ctx, provider)
	if err != nil {
		return nil, nil, err
	}
	if o.driver != "" {
		cfg.StorageDriver = config.StorageDriver(o.driver)
	}
	if o.sqlitePath != "" {
		cfg.SQLitePath = o.sqlitePath
	}
	if o.boltPath != "" {
		cfg.BoltPath = o.boltPath
	}
	if o.maxDepth > 0 {
		cfg.MaxTreeDepth = o.maxDepth
	}
	return cfg, provider, nil
}

// openRepository opens the configured storage. The caller must call Cleanup.
func (o *options) openRepository(ctx context.Context) (repository.Repository, *config.AppConfig, error) {
	cfg, provider, err := o.appConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	repo, err := repository.Open(ctx, cfg, provider)
	if err != nil {
		return nil, nil, err
	}
	return repo, cfg, nil
}

// withAPI runs fn against the same API the server exposes, so writes drop
// the cached trees the server reads
func (o *options) withAPI(cmd *cobra.Command, fn func(ctx context.Context, api *handlers.TreeHandler) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo, cfg, err := o.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Cleanup(ctx)

	if err := cache.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	cache.SetCacheTTL(cfg.CacheTTL)

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	engine := tree.NewEngine(repo, tree.WithMaxDepth(cfg.MaxTreeDepth), tree.WithLogger(logger))
	return fn(ctx, handlers.NewTreeHandler(engine, auth.NewRoleAuthorizer(cfg.MutationRoles...), logger))
}

// print writes v to w in the selected format
func (o *options) print(w io.Writer, v any) error {
	switch o.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// go through JSON so the wire field names are kept
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}
}
