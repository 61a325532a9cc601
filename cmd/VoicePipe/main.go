package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/AKillionVoice/voicepipe/internal/api"
	"github.com/AKillionVoice/voicepipe/internal/call"
	"github.com/AKillionVoice/voicepipe/internal/flow"
	"github.com/AKillionVoice/voicepipe/internal/genai"
	"github.com/AKillionVoice/voicepipe/internal/goals"
	"github.com/AKillionVoice/voicepipe/internal/knowledge"
	"github.com/AKillionVoice/voicepipe/internal/lockfile"
	"github.com/AKillionVoice/voicepipe/internal/messaging"
	"github.com/AKillionVoice/voicepipe/internal/models"
	"github.com/AKillionVoice/voicepipe/internal/recovery"
	"github.com/AKillionVoice/voicepipe/internal/router"
	"github.com/AKillionVoice/voicepipe/internal/scheduler"
	"github.com/AKillionVoice/voicepipe/internal/session"
	"github.com/AKillionVoice/voicepipe/internal/sms"
	"github.com/AKillionVoice/voicepipe/internal/store"
	"github.com/AKillionVoice/voicepipe/internal/synth"
	"github.com/AKillionVoice/voicepipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for VoicePipe state data
	DefaultStateDir = "/var/lib/voicepipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "voicepipe.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	// One instance per state directory; the SQLite database and audio cache
	// are not safe to share.
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(config, flags); err != nil {
		slog.Error("VoicePipe failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("VoicePipe exited successfully")
}

// run wires the modules together and serves until interrupted.
func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	// Close out call snapshots orphaned by a previous crash before anything
	// else reads them.
	if _, err := recovery.NewReconciler(st).Run(ctx); err != nil {
		slog.Warn("Startup reconciliation failed", "error", err)
	}

	ai, err := genai.NewClient(*flags.openaiKey)
	if err != nil {
		return err
	}

	agents, err := loadOrSeedAgents(st)
	if err != nil {
		return err
	}
	rt, err := router.New(agents)
	if err != nil {
		return err
	}

	defs, err := st.ListGoalDefinitions()
	if err != nil {
		return err
	}
	tracker, err := goals.NewTracker(defs)
	if err != nil {
		return err
	}

	retriever := knowledge.New(ai, st, knowledge.WithTokenBudget(config.KnowledgeTokenBudget))
	engine := flow.NewEngine(ai, retriever, tracker, buildFlowOptions(config)...)

	orch, err := synth.NewOrchestrator(
		[]synth.Provider{synth.NewOpenAIProvider(ai.API()), synth.NewOpenAIBasicProvider(ai.API())},
		synth.WithProviderTimeout(config.SynthTimeout),
	)
	if err != nil {
		return err
	}

	registry := session.NewRegistry(session.WithIdleTimeout(config.IdleTimeout))
	coord := call.NewCoordinator(registry, rt, engine, orch, st, buildFollowUp(flags, st))
	if err := coord.LoadAgents(); err != nil {
		return err
	}
	coord.Start(ctx)
	go consumeEvents(ctx, coord)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddInterval(time.Minute, coord.ReapSweep); err != nil {
		return err
	}
	if err := sched.AddInterval(time.Minute, coord.SnapshotSweep); err != nil {
		return err
	}

	server := api.NewServer(coord, st, buildAPIOptions(flags)...)
	slog.Info("Bootstrapping VoicePipe with configured modules",
		"agents", len(agents), "goals", len(defs), "idle_timeout", config.IdleTimeout)
	return server.Run(ctx)
}

// Config holds environment configuration
type Config struct {
	DatabaseURL          string
	StateDir             string
	OpenAIKey            string
	APIAddr              string
	APIKey               string
	PublicURL            string
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioFromNumber     string
	IdleTimeout          time.Duration
	SynthTimeout         time.Duration
	KnowledgeTokenBudget int
	ContextTokenBudget   int
	DiscoveryTurnLimit   int
	InterruptionWindow   time.Duration
	SentimentWindowSize  int
	TopicStackDepth      int
	ValidateSignatures   bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir         *string
	dbDSN            *string
	openaiKey        *string
	apiAddr          *string
	apiKey           *string
	publicURL        *string
	twilioSID        *string
	twilioToken      *string
	twilioFrom       *string
	validateWebhooks *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		StateDir:             os.Getenv("VOICEPIPE_STATE_DIR"),
		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		APIAddr:              os.Getenv("API_ADDR"),
		APIKey:               os.Getenv("VOICEPIPE_API_KEY"),
		PublicURL:            os.Getenv("PUBLIC_URL"),
		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:     os.Getenv("TWILIO_FROM_NUMBER"),
		IdleTimeout:          util.ParseDurationEnv("IDLE_SESSION_TIMEOUT", session.DefaultIdleTimeout),
		SynthTimeout:         util.ParseDurationEnv("SYNTH_PROVIDER_TIMEOUT", synth.DefaultProviderTimeout),
		KnowledgeTokenBudget: util.ParseIntEnv("KNOWLEDGE_TOKEN_BUDGET", knowledge.DefaultTokenBudget),
		ContextTokenBudget:   util.ParseIntEnv("CONTEXT_TOKEN_BUDGET", flow.DefaultContextTokenBudget),
		DiscoveryTurnLimit:   util.ParseIntEnv("DISCOVERY_TURN_LIMIT", flow.DefaultDiscoveryTurnLimit),
		InterruptionWindow:   util.ParseDurationEnv("INTERRUPTION_WINDOW", flow.DefaultInterruptionWindow),
		SentimentWindowSize:  util.ParseIntEnv("SENTIMENT_WINDOW_SIZE", models.DefaultSentimentWindowSize),
		TopicStackDepth:      util.ParseIntEnv("TOPIC_STACK_DEPTH", models.DefaultTopicStackDepth),
		ValidateSignatures:   util.ParseBoolEnv("VALIDATE_WEBHOOK_SIGNATURES", true),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No VOICEPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"VOICEPIPE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"TWILIO_CREDS_SET", config.TwilioAccountSID != "" && config.TwilioAuthToken != "",
		"API_ADDR", config.APIAddr,
		"PUBLIC_URL", config.PublicURL,
		"IDLE_SESSION_TIMEOUT", config.IdleTimeout,
		"VALIDATE_WEBHOOK_SIGNATURES", config.ValidateSignatures)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:         flag.String("state-dir", config.StateDir, "state directory for VoicePipe data (overrides $VOICEPIPE_STATE_DIR)"),
		dbDSN:            flag.String("db-dsn", config.DatabaseURL, "database DSN: SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		openaiKey:        flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:          flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		apiKey:           flag.String("api-key", config.APIKey, "admin API key (overrides $VOICEPIPE_API_KEY)"),
		publicURL:        flag.String("public-url", config.PublicURL, "externally visible base URL (overrides $PUBLIC_URL)"),
		twilioSID:        flag.String("twilio-account-sid", config.TwilioAccountSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:      flag.String("twilio-auth-token", config.TwilioAuthToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:       flag.String("twilio-from-number", config.TwilioFromNumber, "Twilio sender number for follow-up SMS (overrides $TWILIO_FROM_NUMBER)"),
		validateWebhooks: flag.Bool("validate-webhooks", config.ValidateSignatures, "validate telephony webhook signatures (overrides $VALIDATE_WEBHOOK_SIGNATURES)"),
	}

	flag.Parse()

	// Follow an explicit state directory with the derived SQLite path.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"publicURL", *flags.publicURL,
		"validateWebhooks", *flags.validateWebhooks)

	return flags
}

// openStore opens the configured storage backend.
func openStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// loadOrSeedAgents loads the agent set, seeding the default fallback agent
// on first run so calls can be answered before any configuration exists.
func loadOrSeedAgents(st store.Store) ([]models.AgentConfig, error) {
	agents, err := st.ListAgents()
	if err != nil {
		return nil, err
	}
	if len(agents) > 0 {
		return agents, nil
	}

	fallback := models.AgentConfig{
		ID:           "general",
		Name:         "General Assistant",
		SystemPrompt: "You are a friendly phone assistant. Help the caller with whatever they need, and hand off gracefully when you cannot.",
		Voice:        models.VoiceProfile{Voice: "alloy"},
		Fallback:     true,
	}
	if err := st.SaveAgent(fallback); err != nil {
		return nil, err
	}
	slog.Info("Seeded default fallback agent", "agentID", fallback.ID)
	return []models.AgentConfig{fallback}, nil
}

// buildFollowUp constructs the post-call SMS service when Twilio credentials
// are configured; otherwise follow-up texts are disabled.
func buildFollowUp(flags Flags, st store.Store) call.FollowUpSender {
	if *flags.twilioSID == "" || *flags.twilioToken == "" || *flags.twilioFrom == "" {
		slog.Info("SMS follow-up disabled: Twilio credentials not configured")
		return nil
	}
	sender, err := sms.NewClient(
		sms.WithAccountSID(*flags.twilioSID),
		sms.WithAuthToken(*flags.twilioToken),
		sms.WithFromNumber(*flags.twilioFrom),
	)
	if err != nil {
		slog.Warn("SMS follow-up disabled", "error", err)
		return nil
	}
	return messaging.NewFollowUpService(sender, st)
}

// buildFlowOptions maps conversation tuning from the environment onto engine
// options, passing only values that differ from the engine defaults.
func buildFlowOptions(config Config) []flow.Option {
	var opts []flow.Option
	if config.DiscoveryTurnLimit > 0 && config.DiscoveryTurnLimit != flow.DefaultDiscoveryTurnLimit {
		opts = append(opts, flow.WithDiscoveryTurnLimit(config.DiscoveryTurnLimit))
	}
	if config.InterruptionWindow > 0 && config.InterruptionWindow != flow.DefaultInterruptionWindow {
		opts = append(opts, flow.WithInterruptionWindow(config.InterruptionWindow))
	}
	if config.SentimentWindowSize > 0 && config.SentimentWindowSize != models.DefaultSentimentWindowSize {
		opts = append(opts, flow.WithSentimentWindow(config.SentimentWindowSize))
	}
	if config.TopicStackDepth > 0 && config.TopicStackDepth != models.DefaultTopicStackDepth {
		opts = append(opts, flow.WithTopicDepth(config.TopicStackDepth))
	}
	if config.ContextTokenBudget > 0 && config.ContextTokenBudget != flow.DefaultContextTokenBudget {
		opts = append(opts, flow.WithContextTokenBudget(config.ContextTokenBudget))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.apiKey != "" {
		apiOpts = append(apiOpts, api.WithAPIKey(*flags.apiKey))
	}
	if *flags.publicURL != "" {
		apiOpts = append(apiOpts, api.WithPublicURL(*flags.publicURL))
	}
	if *flags.validateWebhooks && *flags.twilioToken != "" {
		apiOpts = append(apiOpts, api.WithTwilioAuthToken(*flags.twilioToken))
	}
	return apiOpts
}

// consumeEvents logs the coordinator's outbound events. Goal completions and
// reaped sessions surface here for observability even with no other consumer.
func consumeEvents(ctx context.Context, coord *call.Coordinator) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-coord.Events():
			slog.Info("Platform event", "type", event.Type, "callID", event.CallID)
		}
	}
}
