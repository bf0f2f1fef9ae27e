package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nimblefin/loanflow/internal/api"
	"github.com/nimblefin/loanflow/internal/files"
	"github.com/nimblefin/loanflow/internal/flow"
	"github.com/nimblefin/loanflow/internal/genai"
	"github.com/nimblefin/loanflow/internal/store"
	"github.com/nimblefin/loanflow/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LoanFlow state data
	DefaultStateDir = "/var/lib/loanflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "loanflow.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	responder := buildResponder(flags)
	uploader := buildUploader(config)

	var engineOpts []flow.Option
	if config.RespondOnRejection {
		engineOpts = append(engineOpts, flow.WithResponderOnRejection(true))
	}
	engine := flow.NewEngine(st, responder, engineOpts...)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(engine, uploader, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping LoanFlow with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "s3_configured", uploader != nil, "genai_configured", responder != nil)
	if err := server.Run(ctx); err != nil {
		slog.Error("LoanFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LoanFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL        string
	StateDir           string
	OpenAIKey          string
	APIAddr            string
	RespondOnRejection bool
	S3Endpoint         string
	S3Region           string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3UseSSL           bool
	S3PublicBaseURL    string
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
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
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		StateDir:           os.Getenv("LOANFLOW_STATE_DIR"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		APIAddr:            os.Getenv("API_ADDR"),
		RespondOnRejection: util.ParseBoolEnv("RESPOND_ON_REJECTION", false),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		S3Region:           os.Getenv("S3_REGION"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3UseSSL:           util.ParseBoolEnv("S3_USE_SSL", false),
		S3PublicBaseURL:    os.Getenv("S3_PUBLIC_BASE_URL"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LOANFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("LOANFLOW_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"LOANFLOW_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"S3_ENDPOINT_SET", config.S3Endpoint != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for LoanFlow data (overrides $LOANFLOW_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore selects and initializes the session store backend
func buildStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildResponder initializes the GenAI-backed responder when a key is
// configured. Without one the engine falls back to canned replies.
func buildResponder(flags Flags) flow.Responder {
	if *flags.openaiKey == "" {
		slog.Warn("No OpenAI API key configured, free-form replies will use fallback text")
		return nil
	}
	client, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
	if err != nil {
		slog.Warn("Failed to initialize GenAI client, free-form replies will use fallback text", "error", err)
		return nil
	}
	return flow.NewGenAIResponder(client)
}

// buildUploader initializes the S3 document uploader when configured.
func buildUploader(config Config) files.Uploader {
	if config.S3Endpoint == "" {
		slog.Warn("No S3 endpoint configured, document upload endpoints disabled")
		return nil
	}
	uploader, err := files.NewS3Uploader(files.S3Config{
		Endpoint:      config.S3Endpoint,
		Region:        config.S3Region,
		AccessKey:     config.S3AccessKey,
		SecretKey:     config.S3SecretKey,
		Bucket:        config.S3Bucket,
		UseSSL:        config.S3UseSSL,
		PublicBaseURL: config.S3PublicBaseURL,
	})
	if err != nil {
		slog.Warn("Failed to initialize S3 uploader, document upload endpoints disabled", "error", err)
		return nil
	}
	return uploader
}
