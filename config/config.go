package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432" validate:"gt=0"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Outbound HTTP
	HTTPTimeout        time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	HTTPMaxAttempts    int           `envconfig:"HTTP_MAX_ATTEMPTS" default:"10" validate:"gt=0"`
	HTTPRetryBaseDelay time.Duration `envconfig:"HTTP_RETRY_BASE_DELAY" default:"250ms"`
	HTTPRetryMaxDelay  time.Duration `envconfig:"HTTP_RETRY_MAX_DELAY" default:"10s"`
	HTTPRateLimit      float64       `envconfig:"HTTP_RATE_LIMIT" default:"10" validate:"gt=0"`
	HTTPUserAgent      string        `envconfig:"HTTP_USER_AGENT" default:"oa-workflow/1.0 (mailto:openaccess@psu.edu)"`

	UnpaywallBaseURL string `envconfig:"UNPAYWALL_BASE_URL" default:"https://api.unpaywall.org/v2" validate:"url"`
	UnpaywallEmail   string `envconfig:"UNPAYWALL_EMAIL" default:"openaccess@psu.edu" validate:"email"`

	OpenAccessButtonBaseURL string `envconfig:"OPEN_ACCESS_BUTTON_BASE_URL" default:"https://api.openaccessbutton.org/permissions" validate:"url"`
	OAWorksBaseURL          string `envconfig:"OA_WORKS_BASE_URL" default:"https://bg.api.oa.works/permissions" validate:"url"`
	// Reihenfolge bestimmt die Priorität bei der Abfrage
	PermissionSources string `envconfig:"PERMISSION_SOURCES" default:"oaworks,openaccessbutton"`

	ScholarsphereBaseURL       string `envconfig:"SCHOLARSPHERE_BASE_URL" default:"https://scholarsphere.psu.edu" validate:"url"`
	ScholarsphereWebhookSecret string `envconfig:"SCHOLARSPHERE_WEBHOOK_SECRET" required:"true" validate:"required"`

	ActivityInsightBaseURL  string `envconfig:"ACTIVITY_INSIGHT_BASE_URL" default:"https://webservices.digitalmeasures.com/login/service/v4" validate:"url"`
	ActivityInsightUsername string `envconfig:"ACTIVITY_INSIGHT_USERNAME"`
	ActivityInsightPassword string `envconfig:"ACTIVITY_INSIGHT_PASSWORD"`

	// Opaque credentials for the Pure and ORCID integrations.
	PureAPIKey        string `envconfig:"PURE_API_KEY"`
	OrcidClientID     string `envconfig:"ORCID_CLIENT_ID"`
	OrcidClientSecret string `envconfig:"ORCID_CLIENT_SECRET"`

	DOISimilarityThreshold    float64       `envconfig:"DOI_SIMILARITY_THRESHOLD" default:"0.70" validate:"gt=0,lte=1"`
	DOIVerificationRetryAfter time.Duration `envconfig:"DOI_VERIFICATION_RETRY_AFTER" default:"168h" validate:"gte=0"`

	WorkflowCronSchedule      string `envconfig:"WORKFLOW_CRON_SCHEDULE" default:"0 * * * *"`
	PostprintSyncCronSchedule string `envconfig:"POSTPRINT_SYNC_CRON_SCHEDULE" default:"30 2 * * *"`

	JobBackend         string `envconfig:"JOB_BACKEND" default:"gochannel" validate:"oneof=gochannel kafka"`
	JobTopic           string `envconfig:"JOB_TOPIC" default:"oa-workflow.jobs"`
	JobPoisonTopic     string `envconfig:"JOB_POISON_TOPIC" default:"oa-workflow.jobs.poison"`
	JobMaxRetries      int    `envconfig:"JOB_MAX_RETRIES" default:"5" validate:"gte=0"`
	KafkaBrokers       string `envconfig:"KAFKA_BROKERS"`
	KafkaConsumerGroup string `envconfig:"KAFKA_CONSUMER_GROUP" default:"cg-oa-workflow"`

	// Leer lassen, um den Lauf-Lock zu deaktivieren
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	RunLockTTL    time.Duration `envconfig:"RUN_LOCK_TTL" default:"30m"`

	S3Key    string `envconfig:"S3_KEY"`
	S3Secret string `envconfig:"S3_SECRET"`
	S3URL    string `envconfig:"S3_URL"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket string `envconfig:"S3_BUCKET" default:"activity-insight-oa-files"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// PermissionSourceNames returns the configured permission providers in priority order.
func (c *Config) PermissionSourceNames() []string {
	var names []string
	for _, name := range strings.Split(c.PermissionSources, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// KafkaBrokerList splits KAFKA_BROKERS.
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Validate prüft die Werte, die envconfig nicht selbst abdeckt.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.JobBackend == "kafka" && len(c.KafkaBrokerList()) == 0 {
		return fmt.Errorf("invalid configuration: KAFKA_BROKERS is required for the kafka job backend")
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
