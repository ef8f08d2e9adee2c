package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"widget-preview/handler"
	"widget-preview/internal/config"
	"widget-preview/internal/diagnostics"
	"widget-preview/internal/integrations/baserow"
	"widget-preview/internal/integrations/paramstore"
	"widget-preview/internal/integrations/vercel"
	"widget-preview/internal/metrics"
	"widget-preview/internal/probe"
	"widget-preview/internal/records"
	"widget-preview/internal/repository"
	"widget-preview/internal/storage"
	"widget-preview/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	// ---- Logging and metrics ----
	recorder := diagnostics.NewRecorder(diagnostics.DefaultCapacity, cfg.SlogLevel())
	logger := diagnostics.NewLogger(os.Stderr, cfg.SlogLevel(), recorder)
	slog.SetDefault(logger)
	m := metrics.New()

	// ---- Storage ----
	local, err := storage.NewLocalStore(cfg.DataDir, storage.WithNumericIDs(cfg.NumericLocalIDs))
	if err != nil {
		fatal("failed to open local store", err)
	}
	cloud := &awsDeps{}
	remote, err := newRemote(ctx, cfg, cloud, logger)
	if err != nil {
		fatal("failed to create remote store", err)
	}
	if missing := cfg.Missing(); len(missing) > 0 && cfg.StorageBackend != config.BackendLocal {
		logger.Warn("remote storage not configured, using local store", "backend", cfg.StorageBackend, "missing", missing)
	}
	store, err := storage.NewFallback(local, remote,
		storage.WithLogger(logger),
		storage.WithRecorder(m),
		storage.WithBackendName(cfg.StorageBackend),
	)
	if err != nil {
		fatal("failed to create storage", err)
	}

	clients, err := records.NewClientService(store)
	if err != nil {
		fatal("failed to create client service", err)
	}
	scripts, err := records.NewScriptService(store, records.WithLegacy(local))
	if err != nil {
		fatal("failed to create script service", err)
	}
	conversations, err := records.NewConversationService(store)
	if err != nil {
		fatal("failed to create conversation service", err)
	}

	// ---- Use cases ----
	links := usecase.NewLinks(cfg.Origin)
	composerOpts := []usecase.ComposerOption{
		usecase.WithComposerLogger(logger),
		usecase.WithReservedSlugs(cfg.Resolver().Reserved...),
	}
	managerOpts := []usecase.ManagerOption{usecase.WithManagerLogger(logger)}
	if cfg.VercelEnabled() {
		domains, err := newDomains(ctx, cfg, cloud, logger)
		if err != nil {
			fatal("failed to create domain client", err)
		}
		composerOpts = append(composerOpts, usecase.WithDomainRegistrar(domains))
		managerOpts = append(managerOpts, usecase.WithDomainCleanup(domains))
	}
	previewerOpts := []usecase.PreviewerOption{
		usecase.WithPolicy(cfg.Policy()),
		usecase.WithPreviewerLogger(logger),
	}
	if cfg.Probe.Enabled {
		previewerOpts = append(previewerOpts, usecase.WithProber(probe.NewChrome(
			probe.WithExecPath(cfg.Probe.ChromePath),
			probe.WithTimeout(cfg.Probe.Timeout),
			probe.WithNoSandbox(cfg.Probe.NoSandbox),
			probe.WithLogger(logger),
		)))
	}

	composer, err := usecase.NewComposer(clients, scripts, links, composerOpts...)
	if err != nil {
		fatal("failed to create composer", err)
	}
	manager, err := usecase.NewManager(clients, scripts, store, links, managerOpts...)
	if err != nil {
		fatal("failed to create manager", err)
	}
	previewer, err := usecase.NewPreviewer(scripts, clients, conversations, links, previewerOpts...)
	if err != nil {
		fatal("failed to create previewer", err)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(handler.Deps{
		Composer:    composer,
		Manager:     manager,
		Previewer:   previewer,
		Storage:     store,
		Subdomains:  cfg.Resolver(),
		Diagnostics: recorder,
		Metrics:     m,
		Missing:     cfg.Missing(),
		Logger:      logger,
	})
	if err != nil {
		fatal("failed to create handler", err)
	}

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(h.Handle)
		return
	}
	serve(cfg.Port, h, logger)
}

// awsDeps loads the AWS configuration once, on first use.
type awsDeps struct {
	cfg *aws.Config
	ssm *paramstore.Client
}

func (a *awsDeps) config(ctx context.Context) (aws.Config, error) {
	if a.cfg != nil {
		return *a.cfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, err
	}
	a.cfg = &cfg
	return cfg, nil
}

func (a *awsDeps) params(ctx context.Context) (*paramstore.Client, error) {
	if a.ssm != nil {
		return a.ssm, nil
	}
	cfg, err := a.config(ctx)
	if err != nil {
		return nil, err
	}
	c, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	a.ssm = c
	return c, nil
}

// token prefers a literal token and falls back to a parameter store entry.
func (a *awsDeps) token(ctx context.Context, literal, param string) (*paramstore.TokenSource, error) {
	if literal != "" || param == "" {
		return paramstore.StaticToken(literal), nil
	}
	ssm, err := a.params(ctx)
	if err != nil {
		return nil, err
	}
	return paramstore.ParameterToken(ssm, param), nil
}

// newRemote returns nil when the selected backend is local or still missing
// configuration.
func newRemote(ctx context.Context, cfg config.Config, a *awsDeps, logger *slog.Logger) (storage.Remote, error) {
	if !cfg.RemoteConfigured() {
		return nil, nil
	}
	switch cfg.StorageBackend {
	case config.BackendBaserow:
		tokens, err := a.token(ctx, cfg.Baserow.APIToken, cfg.Baserow.TokenParam)
		if err != nil {
			return nil, err
		}
		client, err := baserow.NewClient(tokens, cfg.BaserowTableIDs(),
			baserow.WithBaseURL(cfg.Baserow.BaseURL),
			baserow.WithAuthScheme(cfg.Baserow.AuthScheme),
			baserow.WithDatabaseID(cfg.Baserow.DatabaseID),
			baserow.WithHTTPClient(diagnostics.Install(nil, logger)),
		)
		if err != nil {
			return nil, err
		}
		maps, err := cfg.FieldMaps()
		if err != nil {
			return nil, err
		}
		return storage.WithFieldMap(client, maps), nil
	case config.BackendDynamoDB:
		awsCfg, err := a.config(ctx)
		if err != nil {
			return nil, err
		}
		client, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, nil
}

func newDomains(ctx context.Context, cfg config.Config, a *awsDeps, logger *slog.Logger) (*vercel.Client, error) {
	tokens, err := a.token(ctx, cfg.Vercel.APIToken, cfg.Vercel.TokenParam)
	if err != nil {
		return nil, err
	}
	return vercel.NewClient(tokens, cfg.Vercel.ProjectID, cfg.PrimaryDomain(),
		vercel.WithTeamID(cfg.Vercel.TeamID),
		vercel.WithHTTPClient(diagnostics.Install(nil, logger)),
	)
}

func serve(port string, h http.Handler, logger *slog.Logger) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server stopped", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
