package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/BTreeMap/FocusPipe/internal/api"
	"github.com/BTreeMap/FocusPipe/internal/genai"
	"github.com/BTreeMap/FocusPipe/internal/store"
	"github.com/BTreeMap/FocusPipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FocusPipe state data
	DefaultStateDir = "/var/lib/focuspipe"
	// DefaultAppDBFileName is the default SQLite database for sessions, events and follow-ups
	DefaultAppDBFileName = "focuspipe.db"
	// DefaultWhatsAppDBFileName is the default SQLite database for the whatsmeow device store
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config, err := loadEnvironmentConfig()
	if err != nil {
		slog.Error("Invalid environment configuration", "error", err)
		os.Exit(1)
	}

	flags := parseCommandLineFlags(flag.CommandLine, config, os.Args[1:])

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping FocusPipe with configured modules")
	slog.Debug("Module options counts", "whatsapp", len(waOpts), "store", len(storeOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	if err := api.Run(waOpts, storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("FocusPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("FocusPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir      string   `env:"FOCUSPIPE_STATE_DIR" envDefault:"/var/lib/focuspipe"`
	DatabaseURL   string   `env:"DATABASE_URL"`
	Transport     string   `env:"FOCUSPIPE_TRANSPORT" envDefault:"whatsapp"`
	WhatsAppDSN   string   `env:"WHATSAPP_DB_DSN"`
	TwilioSID     string   `env:"TWILIO_ACCOUNT_SID"`
	TwilioToken   string   `env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom    string   `env:"TWILIO_FROM_NUMBER"`
	TwilioWebhook string   `env:"TWILIO_WEBHOOK_URL"`
	OpenAIKey     string   `env:"OPENAI_API_KEY"`
	GenAIModel    string   `env:"OPENAI_MODEL"`
	GenAIDebug    bool     `env:"GENAI_DEBUG"`
	APIAddr       string   `env:"API_ADDR" envDefault:":8080"`
	JWTSecret     string   `env:"API_JWT_SECRET"`
	AdminIDs      []string `env:"FOCUSPIPE_ADMIN_IDS" envSeparator:","`
	TiersFile     string   `env:"FOCUSPIPE_TIERS_FILE"`
	Timezone      string   `env:"FOCUSPIPE_TIMEZONE" envDefault:"UTC"`
	OTELEndpoint  string   `env:"FOCUSPIPE_OTEL_ENDPOINT"`
	FastDelays    bool     `env:"FOCUSPIPE_FAST_DELAYS"`
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	waDSN       *string
	transport   *string
	openaiKey   *string
	openaiModel *string
	genaiDebug  *bool
	apiAddr     *string
	jwtSecret   *string
	admins      *string
	tiersFile   *string
	timezone    *string
	otel        *string
	fast        *bool

	twilioSID     string
	twilioToken   string
	twilioFrom    string
	twilioWebhook string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from a .env file and the environment
func loadEnvironmentConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	// The application store defaults to SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No DATABASE_URL set, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = whatsAppDSNFor(config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"FOCUSPIPE_STATE_DIR", config.StateDir,
		"FOCUSPIPE_TRANSPORT", config.Transport,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"API_JWT_SECRET_SET", config.JWTSecret != "",
		"FOCUSPIPE_ADMIN_IDS", len(config.AdminIDs),
		"FOCUSPIPE_TIMEZONE", config.Timezone)

	return config, nil
}

func whatsAppDSNFor(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses args with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, config Config, args []string) Flags {
	flags := Flags{
		qrOutput:    fs.String("qr-output", "", "path to write login QR code"),
		numeric:     fs.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:    fs.String("state-dir", config.StateDir, "state directory for FocusPipe data (overrides $FOCUSPIPE_STATE_DIR)"),
		dbDSN:       fs.String("db-dsn", config.DatabaseURL, "application database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		waDSN:       fs.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)"),
		transport:   fs.String("transport", config.Transport, "messaging transport, whatsapp or twilio (overrides $FOCUSPIPE_TRANSPORT)"),
		openaiKey:   fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel: fs.String("openai-model", config.GenAIModel, "OpenAI model for motivation texts (overrides $OPENAI_MODEL)"),
		genaiDebug:  fs.Bool("genai-debug", config.GenAIDebug, "write GenAI requests to <state-dir>/debug (overrides $GENAI_DEBUG)"),
		apiAddr:     fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		jwtSecret:   fs.String("jwt-secret", config.JWTSecret, "HMAC secret for API tokens (overrides $API_JWT_SECRET)"),
		admins:      fs.String("admins", strings.Join(config.AdminIDs, ","), "comma separated admin participant ids (overrides $FOCUSPIPE_ADMIN_IDS)"),
		tiersFile:   fs.String("tiers-file", config.TiersFile, "YAML tier plans (overrides $FOCUSPIPE_TIERS_FILE)"),
		timezone:    fs.String("timezone", config.Timezone, "IANA zone for daily limits (overrides $FOCUSPIPE_TIMEZONE)"),
		otel:        fs.String("otel-endpoint", config.OTELEndpoint, "OTLP/HTTP traces endpoint (overrides $FOCUSPIPE_OTEL_ENDPOINT)"),
		fast:        fs.Bool("fast", config.FastDelays, "use second-scale follow-up delays for testing"),

		twilioSID:     config.TwilioSID,
		twilioToken:   config.TwilioToken,
		twilioFrom:    config.TwilioFrom,
		twilioWebhook: config.TwilioWebhook,
	}

	if err := fs.Parse(args); err != nil {
		slog.Warn("flag parsing failed", "error", err)
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"transport", *flags.transport,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"fast", *flags.fast)

	// Follow a -state-dir override when the DSNs were only defaulted.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		}
		if *flags.waDSN == whatsAppDSNFor(config.StateDir) {
			*flags.waDSN = whatsAppDSNFor(*flags.stateDir)
		}
		slog.Debug("Updated default DSNs for state directory", "state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates the state directory and the parent of a SQLite database
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir}
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		dirs = append(dirs, filepath.Dir(*flags.dbDSN))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		slog.Debug("Creating directory", "dir", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("Failed to create directory", "error", err, "dir", dir)
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	return waOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
	return append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	if *flags.genaiDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(*flags.stateDir))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server and wiring options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithStateDir(*flags.stateDir),
		api.WithTransport(*flags.transport),
		api.WithTimezone(*flags.timezone),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.jwtSecret != "" {
		apiOpts = append(apiOpts, api.WithJWTSecret(*flags.jwtSecret))
	}
	if flags.twilioSID != "" || flags.twilioToken != "" || flags.twilioFrom != "" {
		apiOpts = append(apiOpts, api.WithTwilioCredentials(flags.twilioSID, flags.twilioToken, flags.twilioFrom))
	}
	if flags.twilioWebhook != "" {
		apiOpts = append(apiOpts, api.WithTwilioWebhookURL(flags.twilioWebhook))
	}
	if admins := splitList(*flags.admins); len(admins) > 0 {
		apiOpts = append(apiOpts, api.WithAdmins(admins))
	}
	if *flags.tiersFile != "" {
		apiOpts = append(apiOpts, api.WithTiersFile(*flags.tiersFile))
	}
	if *flags.otel != "" {
		apiOpts = append(apiOpts, api.WithOTELEndpoint(*flags.otel))
	}
	if *flags.fast {
		apiOpts = append(apiOpts, api.WithFastDelays())
	}
	return apiOpts
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
