// Package config reads the service configuration from the environment and
// optional .env files. It is read once, in main.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"widget-preview/internal/storage"
	"widget-preview/internal/subdomain"
	"widget-preview/internal/widget"
)

// Storage backends.
const (
	BackendBaserow  = "baserow"
	BackendDynamoDB = "dynamodb"
	BackendLocal    = "local"
)

// Local data directories used when DATA_DIR is unset. Lambda only allows
// writes under /tmp.
const (
	DefaultDataDir       = "./data"
	DefaultLambdaDataDir = "/tmp/widget-preview"
)

// DefaultEnvFiles are loaded when present. Variables already set in the
// process environment win.
var DefaultEnvFiles = []string{".env", ".env.local"}

type BaserowOptions struct {
	APIToken             string `env:"BASEROW_API_TOKEN"`
	TokenParam           string `env:"BASEROW_TOKEN_PARAM"`
	BaseURL              string `env:"BASEROW_BASE_URL" envDefault:"https://api.baserow.io"`
	AuthScheme           string `env:"BASEROW_AUTH_SCHEME" envDefault:"Token"`
	DatabaseID           int    `env:"BASEROW_DATABASE_ID"`
	ClientsTableID       int    `env:"BASEROW_CLIENTS_TABLE_ID"`
	ScriptsTableID       int    `env:"BASEROW_SCRIPTS_TABLE_ID"`
	ConversationsTableID int    `env:"BASEROW_CONVERSATIONS_TABLE_ID"`
	// FieldMap is JSON: {"clients": {"name": "field_1234"}, ...}.
	FieldMap string `env:"BASEROW_FIELD_MAP"`
}

type VercelOptions struct {
	APIToken   string `env:"VERCEL_API_TOKEN"`
	TokenParam string `env:"VERCEL_TOKEN_PARAM"`
	ProjectID  string `env:"VERCEL_PROJECT_ID"`
	TeamID     string `env:"VERCEL_TEAM_ID"`
}

type WidgetOptions struct {
	Tag             string        `env:"WIDGET_TAG" envDefault:"ra-chatbot-widget"`
	Selector        string        `env:"WIDGET_SELECTOR"`
	DetectAttempts  int           `env:"DETECT_ATTEMPTS" envDefault:"6"`
	InitialDelay    time.Duration `env:"DETECT_INITIAL_DELAY" envDefault:"1500ms"`
	BackoffFactor   float64       `env:"DETECT_BACKOFF_FACTOR" envDefault:"1.5"`
	MaxDelay        time.Duration `env:"DETECT_MAX_DELAY" envDefault:"5s"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1s"`
	CleanupWindow   time.Duration `env:"CLEANUP_WINDOW" envDefault:"15s"`
	LoadTimeout     time.Duration `env:"WIDGET_LOAD_TIMEOUT" envDefault:"5s"`
}

type ProbeOptions struct {
	Enabled    bool          `env:"PROBE_ENABLED" envDefault:"false"`
	ChromePath string        `env:"CHROME_PATH"`
	Timeout    time.Duration `env:"PROBE_TIMEOUT" envDefault:"60s"`
	// NoSandbox disables the Chrome sandbox for untrusted embeds. Opt in only
	// inside an already isolated container.
	NoSandbox bool `env:"PROBE_NO_SANDBOX" envDefault:"false"`
}

type Config struct {
	Port            string `env:"PORT" envDefault:"8080"`
	Origin          string `env:"ORIGIN" envDefault:"http://localhost:8080"`
	DataDir         string `env:"DATA_DIR"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	StorageBackend  string `env:"STORAGE_BACKEND" envDefault:"baserow"`
	NumericLocalIDs bool   `env:"NUMERIC_LOCAL_IDS" envDefault:"false"`
	DynamoDBTable   string `env:"DYNAMODB_TABLE"`

	BaseDomains        []string `env:"BASE_DOMAINS" envSeparator:","`
	ReservedSubdomains []string `env:"RESERVED_SUBDOMAINS" envSeparator:","`

	Baserow BaserowOptions
	Vercel  VercelOptions
	Widget  WidgetOptions
	Probe   ProbeOptions
}

// LoadEnv loads the files that exist and returns how many did.
func LoadEnv(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return 0, fmt.Errorf("config: load env files: %w", err)
	}
	return len(existing), nil
}

// Load reads envFiles (DefaultEnvFiles when none are given) and parses the
// environment. Missing remote credentials are not an error; see Missing.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	if _, err := LoadEnv(envFiles); err != nil {
		return Config{}, err
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir()
	}
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	switch c.StorageBackend {
	case BackendBaserow, BackendDynamoDB, BackendLocal:
	default:
		return Config{}, fmt.Errorf("config: STORAGE_BACKEND must be baserow, dynamodb or local, got %q", c.StorageBackend)
	}
	if _, err := c.FieldMaps(); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func defaultDataDir() string {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		return DefaultLambdaDataDir
	}
	return DefaultDataDir
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(c.LogLevel)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BaserowTableIDs returns the tables that have a Baserow table id.
func (c Config) BaserowTableIDs() map[storage.Table]int {
	out := map[storage.Table]int{}
	for table, id := range map[storage.Table]int{
		storage.TableClients:       c.Baserow.ClientsTableID,
		storage.TableScripts:       c.Baserow.ScriptsTableID,
		storage.TableConversations: c.Baserow.ConversationsTableID,
	} {
		if id > 0 {
			out[table] = id
		}
	}
	return out
}

// FieldMaps decodes BASEROW_FIELD_MAP. An empty value means the semantic
// field names are used as-is.
func (c Config) FieldMaps() (map[storage.Table]storage.FieldMap, error) {
	raw := strings.TrimSpace(c.Baserow.FieldMap)
	if raw == "" {
		return nil, nil
	}
	var decoded map[string]map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("config: BASEROW_FIELD_MAP: %w", err)
	}
	out := make(map[storage.Table]storage.FieldMap, len(decoded))
	for name, fields := range decoded {
		table := storage.Table(strings.ToLower(strings.TrimSpace(name)))
		if !slices.Contains(storage.Tables, table) {
			return nil, fmt.Errorf("config: BASEROW_FIELD_MAP: unknown table %q", name)
		}
		out[table] = storage.FieldMap(fields)
	}
	return out, nil
}

// Missing lists the variables the selected remote backend still needs.
// An empty list means the remote backend is fully configured.
func (c Config) Missing() []string {
	var missing []string
	switch c.StorageBackend {
	case BackendBaserow:
		if c.Baserow.APIToken == "" && c.Baserow.TokenParam == "" {
			missing = append(missing, "BASEROW_API_TOKEN")
		}
		if c.Baserow.ClientsTableID <= 0 {
			missing = append(missing, "BASEROW_CLIENTS_TABLE_ID")
		}
		if c.Baserow.ScriptsTableID <= 0 {
			missing = append(missing, "BASEROW_SCRIPTS_TABLE_ID")
		}
	case BackendDynamoDB:
		if strings.TrimSpace(c.DynamoDBTable) == "" {
			missing = append(missing, "DYNAMODB_TABLE")
		}
	}
	return missing
}

// RemoteConfigured reports whether the selected backend can be used.
func (c Config) RemoteConfigured() bool {
	return c.StorageBackend != BackendLocal && len(c.Missing()) == 0
}

func (c Config) VercelEnabled() bool {
	return (c.Vercel.APIToken != "" || c.Vercel.TokenParam != "") && c.Vercel.ProjectID != ""
}

func (c Config) Resolver() subdomain.Resolver {
	return subdomain.NewResolver(c.BaseDomains, c.ReservedSubdomains)
}

// PrimaryDomain is the base domain client subdomains are registered under.
func (c Config) PrimaryDomain() string {
	return c.Resolver().BaseDomains[0]
}

// Policy builds the preview page policy from the widget options.
func (c Config) Policy() widget.Policy {
	p := widget.DefaultPolicy()
	p.WidgetTag = c.Widget.Tag
	p.WidgetSelector = c.Widget.Selector
	p.DetectAttempts = c.Widget.DetectAttempts
	p.InitialDelay = c.Widget.InitialDelay
	p.BackoffFactor = c.Widget.BackoffFactor
	p.MaxDelay = c.Widget.MaxDelay
	p.CleanupInterval = c.Widget.CleanupInterval
	p.CleanupWindow = c.Widget.CleanupWindow
	p.LoadTimeout = c.Widget.LoadTimeout
	return p.Normalized()
}

// ErrNoOrigin is returned by Validate when ORIGIN is blank.
var ErrNoOrigin = errors.New("config: ORIGIN must not be empty")

// Validate checks the values main cannot run without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Origin) == "" {
		return ErrNoOrigin
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: DATA_DIR must not be empty")
	}
	return nil
}
