package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chatinfra "github.com/boddenberg/charter-leads-bfa/internal/chat/infra"
	chatservice "github.com/boddenberg/charter-leads-bfa/internal/chat/service"
	"github.com/boddenberg/charter-leads-bfa/internal/config"
	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/handler"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/aviation"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/browser"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/cache"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/llm"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/objectstore"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/observability"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/postgres"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/resilience"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/search"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/supabase"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/webhook"
	"github.com/boddenberg/charter-leads-bfa/internal/port"
	"github.com/boddenberg/charter-leads-bfa/internal/reference"
	"github.com/boddenberg/charter-leads-bfa/internal/service"

	"go.uber.org/zap"
)

func main() {
	// `bfa hash-intake-token <token>` prints the value for INTAKE_TOKEN_HASH.
	if len(os.Args) == 3 && os.Args[1] == "hash-intake-token" {
		hash, err := service.HashIntakeToken(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "charter-leads-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
		Jitter:         true,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Store ---
	var store port.Store
	if cfg.UsePostgres() {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		if err := postgres.ApplyMigrations(ctx, db); err != nil {
			logger.Fatal("failed to apply migrations", zap.Error(err))
		}
		pg := postgres.NewStore(db, logger)
		defer pg.Close()
		store = pg
		logger.Info("using direct Postgres store")
	} else {
		if cfg.SupabaseURL == "" {
			logger.Warn("SUPABASE_URL is empty, every store call will fail")
		}
		store = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
		)
		logger.Info("using Supabase PostgREST store", zap.String("supabase_url", cfg.SupabaseURL))
	}

	// --- LLM ---
	extractor, streamer, chatModel := buildLLM(cfg, httpClient, metrics, resilienceCfg, logger)

	// --- Optional integrations ---
	var archive port.PageArchive
	if cfg.MinioEndpoint != "" {
		a, err := objectstore.New(ctx, objectstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger)
		if err != nil {
			logger.Warn("page archive disabled", zap.Error(err))
		} else {
			archive = a
		}
	}

	var scraper port.PageScraper
	if b, err := browser.NewRemote(cfg.BrowserlessWSURL, 45*time.Second, logger); err == nil {
		defer b.Close()
		scraper = b.LimitTabs(cfg.MaxConcurrency)
	} else {
		logger.Info("page scraping disabled", zap.Error(err))
	}

	var searchHealth handler.SearchHealth
	avDeps := service.AviationDeps{}
	if cfg.MeiliURL != "" {
		idx := search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey, logger)
		avDeps.Index = idx
		searchHealth = idx
	}

	onLimit := func(svc string) { metrics.IncrRateLimited(svc) }
	if cfg.AeroDataBoxAPIKey != "" {
		avDeps.Lookup = aviation.NewAeroDataBox(httpClient, cfg.AeroDataBoxHost, cfg.AeroDataBoxAPIKey, "",
			resilience.NewCircuitBreaker("aerodatabox"), onLimit, logger)
	}
	if cfg.AirNavAPIKey != "" {
		avDeps.Positions = aviation.NewAirNav(httpClient, cfg.AirNavURL, cfg.AirNavAPIKey,
			resilience.NewCircuitBreaker("airnav"), onLimit, logger)
	}
	var fleet port.FleetProvider
	if cfg.AviapagesToken != "" {
		fleet = aviation.NewAviapages(httpClient, cfg.AviapagesURL, cfg.AviapagesToken,
			resilience.NewCircuitBreaker("aviapages"), onLimit, logger)
	}

	// --- Caches ---
	airportCache := cache.New[*domain.Airport](6 * time.Hour)
	defer airportCache.Close()
	minutesCache := cache.New[int](24 * time.Hour)
	defer minutesCache.Close()
	avDeps.Airports = airportCache
	avDeps.Minutes = minutesCache

	catalog, err := reference.Aircraft()
	if err != nil {
		logger.Fatal("failed to load aircraft catalog", zap.Error(err))
	}

	// --- Services ---
	authSvc := service.NewAuthService(cfg.SupabaseJWTSecret, cfg.IntakeTokenHash, logger)
	if cfg.SupabaseJWTSecret == "" {
		logger.Warn("SUPABASE_JWT_SECRET is empty, every /v1 request will be rejected")
	}
	leadSvc := service.NewLeadService(store, store, archive, extractor, metrics, logger)
	aviationSvc := service.NewAviationService(store, store, avDeps, catalog, cfg.FlightTimeFanOut, metrics, logger)
	operatorSvc := service.NewOperatorService(store, store, fleet, metrics, logger)
	quoteSvc := service.NewQuoteService(store, extractor, metrics, logger)
	templateSvc := service.NewTemplateService(store, store)
	importSvc := service.NewImportService(store, leadSvc, scraper, extractor, logger)
	webhookSvc := service.NewWebhookService(store, store, webhook.NewPoster(webhook.NewPublicClient(cfg.HTTPTimeout)),
		cfg.ZapierWebhookURL, cfg.MakeWebhookURL, metrics, logger)

	var chatSvc *chatservice.ChatService
	if streamer != nil {
		chatSvc = chatservice.NewChatService(streamer, chatservice.LeadTools(leadSvc), metrics, chatModel, logger)
	}

	// --- Jobs ---
	if cfg.SeedAircraft {
		seedReferenceData(ctx, aviationSvc, avDeps.Index != nil, logger)
	}
	if fleet != nil && cfg.FleetRefreshCron != "" {
		sched, err := operatorSvc.ScheduleFleetRefresh(ctx, cfg.FleetRefreshCron)
		if err != nil {
			logger.Error("fleet refresh not scheduled", zap.Error(err))
		} else {
			defer sched.Stop()
			logger.Info("fleet refresh scheduled", zap.String("cron", cfg.FleetRefreshCron))
		}
	}

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Auth:      authSvc,
		Leads:     leadSvc,
		Aviation:  aviationSvc,
		Operators: operatorSvc,
		Quotes:    quoteSvc,
		Templates: templateSvc,
		Imports:   importSvc,
		Webhooks:  webhookSvc,
		Chat:      chatSvc,
		Store:     store,
		Search:    searchHealth,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // chat streams
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// buildLLM returns the extractor used by parsing endpoints and the
// OpenAI-compatible streamer used by the chat. Either may be nil when
// the provider has no key.
func buildLLM(cfg *config.Config, httpClient *http.Client, metrics *observability.Metrics, rc resilience.Config, logger *zap.Logger) (port.Extractor, *chatinfra.CompletionClient, string) {
	var (
		completer llm.Completer
		err       error
	)
	switch cfg.LLMProvider {
	case "anthropic":
		completer, err = llm.NewAnthropicCompleter(httpClient, cfg.AnthropicURL, cfg.AnthropicAPIKey, cfg.LLMModel)
	case "openai":
		completer, err = llm.NewOpenAICompleter(httpClient, "openai", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.LLMModel, cfg.MaxRetries)
	default:
		completer, err = llm.NewOpenAICompleter(httpClient, "lovable", cfg.LovableBaseURL, cfg.LovableAPIKey, cfg.LLMModel, cfg.MaxRetries)
	}

	var extractor port.Extractor
	if err != nil {
		logger.Warn("LLM parsing disabled", zap.String("provider", cfg.LLMProvider), zap.Error(err))
	} else {
		extractor = llm.NewExtractor(completer, metrics, logger)
	}

	// The chat speaks the OpenAI streaming format; Anthropic setups reuse
	// the OpenAI key when one is present.
	provider, baseURL, key := "lovable", cfg.LovableBaseURL, cfg.LovableAPIKey
	if cfg.LLMProvider != "lovable" && cfg.LLMProvider != "" {
		provider, baseURL, key = "openai", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey
	}
	if key == "" {
		logger.Warn("chat assistant disabled", zap.String("provider", provider))
		return extractor, nil, ""
	}
	streamClient := &http.Client{} // no overall timeout: streams are long-lived
	streamer := chatinfra.NewCompletionClient(streamClient, provider, baseURL, key,
		resilience.NewCircuitBreaker("llm-chat"), rc)
	return extractor, streamer, cfg.LLMModel
}

func seedReferenceData(ctx context.Context, svc *service.AviationService, reindex bool, logger *zap.Logger) {
	if err := svc.SeedAircraft(ctx); err != nil {
		logger.Error("aircraft seed failed", zap.Error(err))
	}
	airports, err := reference.Airports()
	if err != nil {
		logger.Error("airport seed unreadable", zap.Error(err))
		return
	}
	if err := svc.SeedAirports(ctx, airports); err != nil {
		logger.Error("airport seed failed", zap.Error(err))
		return
	}
	if reindex {
		if n, err := svc.ReindexAirports(ctx); err != nil {
			logger.Warn("airport reindex failed", zap.Error(err))
		} else {
			logger.Info("airports indexed", zap.Int("count", n))
		}
	}
}
