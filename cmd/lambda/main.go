package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/ammiranda/knowledge_tree/auth"
	"github.com/ammiranda/knowledge_tree/cache"
	"github.com/ammiranda/knowledge_tree/config"
	"github.com/ammiranda/knowledge_tree/handlers"
	"github.com/ammiranda/knowledge_tree/internal/lambda"
	"github.com/ammiranda/knowledge_tree/repository"
	"github.com/ammiranda/knowledge_tree/tree"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// database credentials come from Secrets Manager, service settings from the environment
	secrets, err := config.NewAWSConfigProvider()
	if err != nil {
		log.Fatal("Failed to create config provider:", err)
	}
	appCfg, err := config.GetAppConfig(ctx, config.NewEnvProvider(""))
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	repo, err := repository.Open(ctx, appCfg, secrets)
	if err != nil {
		log.Fatal("Failed to initialize repository:", err)
	}

	if err := cache.Initialize(ctx); err != nil {
		log.Fatal("Failed to initialize cache:", err)
	}
	cache.SetCacheTTL(appCfg.CacheTTL)

	engine := tree.NewEngine(repo, tree.WithMaxDepth(appCfg.MaxTreeDepth), tree.WithLogger(logger))
	api := handlers.NewTreeHandler(engine, auth.NewRoleAuthorizer(appCfg.MutationRoles...), logger)

	awslambda.Start(lambda.NewHandler(api).Handle)
}
