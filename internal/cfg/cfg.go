package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

// Scorer backends accepted by -scorer.
const (
	ScorerNone   = "none"
	ScorerClaude = "claude"
	ScorerOpenAI = "openai"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	DatabaseURL      string
	DBMaxConns       int
	DBSlowQueryMS    int
	DBLogQueryArgs   bool
	VocabularyFile   string
	Scorer           string
	ScorerAPIKey     string
	ScorerModel      string
	ScorerBaseURL    string
	ScorerTimeoutMS  int
	ScorerCacheTTLS  int
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioBaseURL    string
	SMSPerSecond     float64
	SlackWebhookURL  string
	KafkaBrokers     string
	KafkaTopic       string
	AMQPURL          string
	AMQPExchange     string

	RetryIntervalSeconds int
	RetryMaxAttempts     int

	APIToken  string
	JWTSecret string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.DBMaxConns, "db-max-conns", 0, "maximum pool connections (0 = pgx default)")
	fs.IntVar(&c.DBSlowQueryMS, "db-slow-query-ms", 200, "log queries slower than this many milliseconds (0 = log every query)")
	fs.BoolVar(&c.DBLogQueryArgs, "db-log-query-args", false, "include query arguments in query logs (may contain patient data)")

	fs.StringVar(&c.VocabularyFile, "vocabulary-file", "", "YAML file with emergency/urgent phrase lists (empty = built-in vocabulary)")
	fs.StringVar(&c.Scorer, "scorer", ScorerNone, "secondary scorer for text the vocabulary does not match (none, claude, openai)")
	fs.StringVar(&c.ScorerAPIKey, "scorer-api-key", "", "API key for the secondary scorer")
	fs.StringVar(&c.ScorerModel, "scorer-model", "", "model name for the secondary scorer (empty = backend default)")
	fs.StringVar(&c.ScorerBaseURL, "scorer-base-url", "", "override the scorer API base URL")
	fs.IntVar(&c.ScorerTimeoutMS, "scorer-timeout-ms", 2000, "per-call scorer timeout in milliseconds")
	fs.IntVar(&c.ScorerCacheTTLS, "scorer-cache-ttl-seconds", 600, "seconds to cache scorer opinions per symptom text (0 = no cache)")

	fs.StringVar(&c.TwilioAccountSID, "twilio-account-sid", "", "Twilio account SID for SMS delivery")
	fs.StringVar(&c.TwilioAuthToken, "twilio-auth-token", "", "Twilio auth token for SMS delivery")
	fs.StringVar(&c.TwilioFrom, "twilio-from", "", "sending phone number for SMS delivery")
	fs.StringVar(&c.TwilioBaseURL, "twilio-base-url", "", "override the Twilio API base URL")
	fs.Float64Var(&c.SMSPerSecond, "sms-per-second", 1, "maximum SMS sends per second (0 = unlimited)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL mirroring patient notifications to staff")

	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for lifecycle events")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", "carequeue.events", "Kafka topic for lifecycle events")
	fs.StringVar(&c.AMQPURL, "amqp-url", "", "AMQP URL for lifecycle events")
	fs.StringVar(&c.AMQPExchange, "amqp-exchange", "carequeue", "AMQP topic exchange for lifecycle events")

	fs.IntVar(&c.RetryIntervalSeconds, "retry-interval-seconds", 0, "seconds between automatic retries of failed notifications (0 = disabled)")
	fs.IntVar(&c.RetryMaxAttempts, "retry-max-attempts", 3, "attempts per notification including the first (1..10)")

	fs.StringVar(&c.APIToken, "api-token", "", "static bearer token required on API requests")
	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HS256 secret for staff JWTs on API requests")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.DBMaxConns < 0 || c.DBMaxConns > 1000 {
		errs = append(errs, fmt.Errorf("invalid DB_MAX_CONNS %d (must be 0..1000)", c.DBMaxConns))
	}
	if c.DBSlowQueryMS < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_SLOW_QUERY_MS %d (must not be negative)", c.DBSlowQueryMS))
	}

	switch c.Scorer {
	case ScorerNone:
	case ScorerClaude, ScorerOpenAI:
		if c.ScorerAPIKey == "" {
			errs = append(errs, fmt.Errorf("SCORER_API_KEY is required for scorer %q", c.Scorer))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid SCORER %q (must be none, claude or openai)", c.Scorer))
	}
	if c.ScorerTimeoutMS <= 0 || c.ScorerTimeoutMS > 30000 {
		errs = append(errs, fmt.Errorf("invalid SCORER_TIMEOUT_MS %d (must be 1..30000)", c.ScorerTimeoutMS))
	}
	if c.ScorerCacheTTLS < 0 {
		errs = append(errs, fmt.Errorf("invalid SCORER_CACHE_TTL_SECONDS %d (must not be negative)", c.ScorerCacheTTLS))
	}

	// Twilio settings are all or nothing
	twilioSet := 0
	for _, v := range []string{c.TwilioAccountSID, c.TwilioAuthToken, c.TwilioFrom} {
		if v != "" {
			twilioSet++
		}
	}
	if twilioSet != 0 && twilioSet != 3 {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM must be set together"))
	}
	if c.SMSPerSecond < 0 {
		errs = append(errs, fmt.Errorf("invalid SMS_PER_SECOND %v (must not be negative)", c.SMSPerSecond))
	}

	if len(c.KafkaBrokerList()) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.AMQPURL != "" && c.AMQPExchange == "" {
		errs = append(errs, errors.New("AMQP_EXCHANGE is required when AMQP_URL is set"))
	}

	if c.RetryIntervalSeconds < 0 || c.RetryIntervalSeconds > 86400 {
		errs = append(errs, fmt.Errorf("invalid RETRY_INTERVAL_SECONDS %d (must be 0..86400)", c.RetryIntervalSeconds))
	}
	if c.RetryMaxAttempts < 1 || c.RetryMaxAttempts > 10 {
		errs = append(errs, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS %d (must be 1..10)", c.RetryMaxAttempts))
	}

	// Only one auth scheme at a time
	if c.APIToken != "" && c.JWTSecret != "" {
		errs = append(errs, errors.New("API_TOKEN and JWT_SECRET are mutually exclusive"))
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 bytes (got %d)", len(c.JWTSecret)))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// KafkaBrokerList splits KafkaBrokers, dropping blanks.
func (c *Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// ScorerTimeout is ScorerTimeoutMS as a duration.
func (c *Config) ScorerTimeout() time.Duration {
	return time.Duration(c.ScorerTimeoutMS) * time.Millisecond
}

// ScorerCacheTTL is ScorerCacheTTLS as a duration.
func (c *Config) ScorerCacheTTL() time.Duration {
	return time.Duration(c.ScorerCacheTTLS) * time.Second
}

// SlowQuery is DBSlowQueryMS as a duration.
func (c *Config) SlowQuery() time.Duration {
	return time.Duration(c.DBSlowQueryMS) * time.Millisecond
}

// RetryInterval is RetryIntervalSeconds as a duration.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalSeconds) * time.Second
}
