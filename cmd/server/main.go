package main

import (
	"log/slog"
	"os"

	"github.com/arefin/codelab/internal/auth"
	"github.com/arefin/codelab/internal/handler"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/policy"
	"github.com/arefin/codelab/internal/ratelimit"
	"github.com/arefin/codelab/internal/repository/sqlite"
	"github.com/arefin/codelab/internal/runner"
	"github.com/arefin/codelab/internal/server"
	"github.com/arefin/codelab/internal/service"
	"github.com/arefin/codelab/internal/validator"
	"github.com/arefin/codelab/internal/workspace"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	port := getenv("PORT", "8080")
	dbPath := getenv("DB_PATH", "codelab.db")
	jwtSecret := getenv("JWT_SECRET", "")
	policyPath := getenv("POLICY_PATH", "")
	pythonBin := getenv("PYTHON_BIN", "python3")
	karelBin := getenv("KAREL_BIN", "karel")
	scratchDir := getenv("SCRATCH_DIR", "")

	db, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tokens, err := auth.NewTokenService(jwtSecret)
	if err != nil {
		return err
	}

	policies, err := policy.NewStore(policyPath, logger)
	if err != nil {
		return err
	}

	workspaces, err := workspace.NewManager(scratchDir, logger)
	if err != nil {
		return err
	}

	processRunner := runner.NewProcessRunner(map[model.Language]string{
		model.LanguagePython: pythonBin,
		model.LanguageKarel:  karelBin,
	}, logger)

	executionService := service.NewExecutionService(
		policies,
		validator.New(),
		workspaces,
		processRunner,
		ratelimit.NewLimiter(),
		db,
		db,
		logger,
	)
	authService := service.NewAuthService(db, tokens, auth.NewPasswordService(), logger)
	snippetService := service.NewSnippetService(db, logger)

	srv := server.New(":"+port, server.Handlers{
		Auth:     handler.NewAuthHandler(authService, logger),
		Execute:  handler.NewExecuteHandler(executionService, logger),
		Snippets: handler.NewSnippetHandler(snippetService, logger),
	}, tokens, policies, logger)

	return srv.Run()
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
