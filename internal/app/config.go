package app

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/jobs"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	// NotificationTransportInline: outbox-воркер сам отправляет письма.
	NotificationTransportInline = "inline"
	// NotificationTransportKafka: воркер кладёт события в Kafka, письма шлёт cmd/notifier.
	NotificationTransportKafka = "kafka"
)

// Переменные окружения сервиса.
const (
	EnvHTTPAddr                    = "LAHMACUN_HTTP_ADDR"
	EnvMetricsAddr                 = "LAHMACUN_METRICS_ADDR"
	EnvStorageDriver               = "LAHMACUN_STORAGE_DRIVER"
	EnvPostgresDSN                 = "LAHMACUN_POSTGRES_DSN"
	EnvPostgresAutoMigrate         = "LAHMACUN_POSTGRES_AUTO_MIGRATE"
	EnvPostgresMaxConns            = "LAHMACUN_POSTGRES_MAX_CONNS"
	EnvOutboxPollInterval          = "LAHMACUN_OUTBOX_POLL_INTERVAL"
	EnvOutboxBatchSize             = "LAHMACUN_OUTBOX_BATCH_SIZE"
	EnvOutboxMaxAttempts           = "LAHMACUN_OUTBOX_MAX_ATTEMPTS"
	EnvOutboxRetryDelay            = "LAHMACUN_OUTBOX_RETRY_DELAY"
	EnvIdempotencyTTL              = "LAHMACUN_IDEMPOTENCY_TTL"
	EnvIdempotencyCleanupInterval  = "LAHMACUN_IDEMPOTENCY_CLEANUP_INTERVAL"
	EnvIdempotencyCleanupBatchSize = "LAHMACUN_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	EnvTimeZone                    = "LAHMACUN_TIMEZONE"
	EnvAdminPassword               = "ADMIN_PASSWORD"
	EnvAdminPasswordHash           = "ADMIN_PASSWORD_HASH"
	EnvSessionTTL                  = "LAHMACUN_SESSION_TTL"
	EnvSessionCookieSecure         = "LAHMACUN_SESSION_COOKIE_SECURE"
	EnvSessionPurgeSchedule        = "LAHMACUN_SESSION_PURGE_SCHEDULE"
	EnvBaseURL                     = "BASE_URL"
	EnvOperatorEmail               = "OPERATOR_EMAIL"
	EnvEmailFrom                   = "EMAIL_FROM"
	EnvEmailHost                   = "EMAIL_SERVER_HOST"
	EnvEmailPort                   = "EMAIL_SERVER_PORT"
	EnvEmailUser                   = "EMAIL_SERVER_USER"
	EnvEmailPassword               = "EMAIL_SERVER_PASSWORD"
	EnvEmailSecure                 = "EMAIL_SERVER_SECURE"
	EnvNotificationTransport       = "NOTIFICATION_TRANSPORT"
	EnvKafkaBrokers                = "KAFKA_BROKERS"
	EnvNATSURL                     = "NATS_URL"
)

// Config: настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	// TimeZone задаёт границу суток в статистике и время в письмах.
	TimeZone string

	AdminPassword        string
	AdminPasswordHash    string
	SessionTTL           time.Duration
	SessionCookieSecure  bool
	SessionPurgeSchedule string

	BaseURL       string
	OperatorEmail string
	EmailFrom     string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	SMTPSSL       bool

	NotificationTransport string
	// KafkaBrokers: список брокеров через запятую.
	KafkaBrokers string
	NATSURL      string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		PostgresMaxConns:            20,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            200 * time.Millisecond,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		TimeZone:                    "Europe/Paris",
		AdminPassword:               "lahmacun123",
		SessionTTL:                  24 * time.Hour,
		SessionPurgeSchedule:        "0 */10 * * * *",
		BaseURL:                     "http://localhost:8080",
		EmailFrom:                   "noreply@example.com",
		SMTPPort:                    587,
		NotificationTransport:       NotificationTransportInline,
	}
}

// Validate проверяет сочетания настроек, которые нельзя исправить значением по умолчанию.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("%s is required for postgres storage", EnvPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.NotificationTransport {
	case NotificationTransportInline:
	case NotificationTransportKafka:
		if len(c.KafkaBrokerList()) == 0 {
			errs = append(errs, fmt.Errorf("%s is required for kafka notification transport", EnvKafkaBrokers))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported notification transport %q", c.NotificationTransport))
	}

	if c.AdminPassword == "" && c.AdminPasswordHash == "" {
		errs = append(errs, fmt.Errorf("%s or %s must be set", EnvAdminPassword, EnvAdminPasswordHash))
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", EnvBaseURL, err))
	}
	if err := jobs.ValidateSchedule(c.SessionPurgeSchedule); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// KafkaBrokerList разбирает KafkaBrokers.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// EnvLookup совместим с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadConfig читает переменные окружения поверх DefaultConfig.
// Некорректные значения заменяются значениями по умолчанию и попадают в warnings.
func LoadConfig(lookup EnvLookup) (Config, []string) {
	cfg := DefaultConfig()
	l := loader{lookup: lookup}

	l.str(EnvHTTPAddr, &cfg.HTTPAddr)
	l.str(EnvMetricsAddr, &cfg.MetricsAddr)
	if v, ok := l.get(EnvStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	l.str(EnvPostgresDSN, &cfg.PostgresDSN)
	l.boolean(EnvPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	l.integer(EnvPostgresMaxConns, &cfg.PostgresMaxConns, positiveInt, "must be > 0")

	l.duration(EnvOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	l.integer(EnvOutboxBatchSize, &cfg.OutboxBatchSize, positiveInt, "must be > 0")
	l.integer(EnvOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positiveInt, "must be > 0")
	l.duration(EnvOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")

	l.duration(EnvIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	l.duration(EnvIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	l.integer(EnvIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positiveInt, "must be > 0")
	l.str(EnvTimeZone, &cfg.TimeZone)

	l.str(EnvAdminPassword, &cfg.AdminPassword)
	l.str(EnvAdminPasswordHash, &cfg.AdminPasswordHash)
	l.duration(EnvSessionTTL, &cfg.SessionTTL, positiveDuration, "must be > 0")
	l.boolean(EnvSessionCookieSecure, &cfg.SessionCookieSecure)
	if v, ok := l.get(EnvSessionPurgeSchedule); ok {
		if err := jobs.ValidateSchedule(v); err != nil {
			l.warn(EnvSessionPurgeSchedule, v, err)
		} else {
			cfg.SessionPurgeSchedule = v
		}
	}

	if v, ok := l.get(EnvBaseURL); ok {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	l.str(EnvOperatorEmail, &cfg.OperatorEmail)
	l.str(EnvEmailFrom, &cfg.EmailFrom)
	l.str(EnvEmailHost, &cfg.SMTPHost)
	l.integer(EnvEmailPort, &cfg.SMTPPort, validPort, "must be a tcp port")
	l.str(EnvEmailUser, &cfg.SMTPUser)
	l.str(EnvEmailPassword, &cfg.SMTPPassword)
	l.boolean(EnvEmailSecure, &cfg.SMTPSSL)

	if v, ok := l.get(EnvNotificationTransport); ok {
		cfg.NotificationTransport = strings.ToLower(v)
	}
	l.str(EnvKafkaBrokers, &cfg.KafkaBrokers)
	l.str(EnvNATSURL, &cfg.NATSURL)

	return cfg, l.warnings
}

type loader struct {
	lookup   EnvLookup
	warnings []string
}

func (l *loader) get(key string) (string, bool) {
	if l.lookup == nil {
		return "", false
	}
	v, ok := l.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (l *loader) warn(key, value string, err error) {
	l.warnings = append(l.warnings, fmt.Sprintf("invalid %s=%q, using default: %v", key, value, err))
}

func (l *loader) str(key string, dst *string) {
	if v, ok := l.get(key); ok {
		*dst = v
	}
}

func (l *loader) boolean(key string, dst *bool) {
	v, ok := l.get(key)
	if !ok {
		return
	}
	parsed, err := parseBool(v)
	if err != nil {
		l.warn(key, v, err)
		return
	}
	*dst = parsed
}

func (l *loader) integer(key string, dst *int, valid func(int) bool, rule string) {
	v, ok := l.get(key)
	if !ok {
		return
	}
	parsed, err := parseInt(v, valid, rule)
	if err != nil {
		l.warn(key, v, err)
		return
	}
	*dst = parsed
}

func (l *loader) duration(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
	v, ok := l.get(key)
	if !ok {
		return
	}
	parsed, err := parseDuration(v, valid, rule)
	if err != nil {
		l.warn(key, v, err)
		return
	}
	*dst = parsed
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

func positiveInt(v int) bool                   { return v > 0 }
func validPort(v int) bool                     { return v > 0 && v <= 65535 }
func positiveDuration(v time.Duration) bool    { return v > 0 }
func nonNegativeDuration(v time.Duration) bool { return v >= 0 }
