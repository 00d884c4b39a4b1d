package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config representa la configuración del servicio
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Inngest  InngestConfig
	Admin    AdminConfig
	Logging  LoggingConfig
	Email    EmailConfig
	FNE      FNEConfig
	Supabase SupabaseConfig
	Metrics  MetricsConfig
}

// ServerConfig representa la configuración del servidor HTTP
type ServerConfig struct {
	Port string
	Host string
	Env  string
}

// DatabaseConfig representa la configuración de la base de datos
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig representa la configuración de Redis
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// InngestConfig representa la configuración de Inngest
type InngestConfig struct {
	EventKey   string
	SigningKey string
	AppID      string
	Dev        bool
}

// AdminConfig representa la autenticación de los endpoints de operador
type AdminConfig struct {
	APIKey string
}

// LoggingConfig representa la configuración de logging
type LoggingConfig struct {
	Level  string
	Format string
}

// EmailConfig representa la configuración de alertas por email
type EmailConfig struct {
	ResendAPIKey  string
	FromEmail     string
	OperatorEmail string
}

// FNEConfig agrupa los parámetros locales del pipeline de certificación.
// La configuración remota (URL, clave, ambiente) vive en la base de datos.
type FNEConfig struct {
	VerificationBaseURL    string
	DefaultBatchSize       int
	BatchCron              string
	BatchLockTTL           time.Duration
	TokenCacheTTL          time.Duration
	SyntheticStartingStock int
	SyntheticWarningBelow  int
	ReconcileTimeout       time.Duration
}

// SupabaseConfig representa la configuración del storage S3 de Supabase
type SupabaseConfig struct {
	URL             string
	StorageEndpoint string
	StorageRegion   string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// MetricsConfig representa la configuración de métricas Prometheus
type MetricsConfig struct {
	Enabled     bool
	ServiceName string
}

// Load carga la configuración desde variables de entorno
func Load() (*Config, error) {
	// Cargar archivo .env si existe; no es crítico si no existe
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8081"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PGHOST", "localhost"),
			Port:     getEnv("PGPORT", "5432"),
			User:     getEnv("PGUSER", "postgres"),
			Password: getEnv("PGPASSWORD", "postgres"),
			Name:     getEnv("PGDATABASE", "fne"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Inngest: InngestConfig{
			EventKey:   getEnv("INNGEST_EVENT_KEY", ""),
			SigningKey: getEnv("INNGEST_SIGNING_KEY", ""),
			AppID:      getEnv("INNGEST_APP_ID", "fne-service"),
			Dev:        getEnvAsBool("INNGEST_DEV", true),
		},
		Admin: AdminConfig{
			APIKey: getEnv("ADMIN_API_KEY", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Email: EmailConfig{
			ResendAPIKey:  getEnv("RESEND_API_KEY", ""),
			FromEmail:     getEnv("EMAIL_FROM", "onboarding@resend.dev"),
			OperatorEmail: getEnv("OPERATOR_EMAIL", ""),
		},
		FNE: FNEConfig{
			VerificationBaseURL:    getEnv("FNE_VERIFICATION_BASE_URL", "https://www.services.fne.dgi.gouv.ci/fr"),
			DefaultBatchSize:       getEnvAsInt("FNE_BATCH_SIZE", 50),
			BatchCron:              getEnv("FNE_BATCH_CRON", "*/15 * * * *"),
			BatchLockTTL:           getEnvAsDuration("FNE_BATCH_LOCK_TTL", 30*time.Minute),
			TokenCacheTTL:          getEnvAsDuration("FNE_TOKEN_CACHE_TTL", 24*time.Hour),
			SyntheticStartingStock: getEnvAsInt("FNE_SYNTHETIC_STOCK", 1000),
			SyntheticWarningBelow:  getEnvAsInt("FNE_SYNTHETIC_WARNING_BELOW", 50),
			ReconcileTimeout:       getEnvAsDuration("FNE_RECONCILE_TIMEOUT", 15*time.Second),
		},
		Supabase: SupabaseConfig{
			URL:             getEnv("SUPABASE_URL", ""),
			StorageEndpoint: getEnv("SUPABASE_STORAGE_ENDPOINT", ""),
			StorageRegion:   getEnv("SUPABASE_STORAGE_REGION", ""),
			AccessKeyID:     getEnv("SUPABASE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("SUPABASE_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("SUPABASE_BUCKET", "certified-invoices"),
		},
		Metrics: MetricsConfig{
			Enabled:     getEnvAsBool("METRICS_ENABLED", true),
			ServiceName: getEnv("METRICS_SERVICE_NAME", "fne-service"),
		},
	}

	return config, nil
}

// getEnv obtiene una variable de entorno o retorna un valor por defecto
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt obtiene una variable de entorno como entero
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool obtiene una variable de entorno como booleano
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration obtiene una variable de entorno como duración
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// IsDevelopment retorna true si el entorno es de desarrollo
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction retorna true si el entorno es de producción
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetDSN retorna la cadena de conexión a la base de datos
func (c *Config) GetDSN() string {
	return "host=" + c.Database.Host +
		" port=" + c.Database.Port +
		" user=" + c.Database.User +
		" password=" + c.Database.Password +
		" dbname=" + c.Database.Name +
		" sslmode=" + c.Database.SSLMode
}

// GetRedisAddr retorna la dirección de Redis
func (c *Config) GetRedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

// HasStorage indica si hay credenciales de storage configuradas
func (c *Config) HasStorage() bool {
	return c.Supabase.StorageEndpoint != "" && c.Supabase.AccessKeyID != "" && c.Supabase.SecretAccessKey != ""
}
