package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment represents the application environment
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// StorageDriver selects the node repository backend
type StorageDriver string

const (
	DriverPostgres StorageDriver = "postgres"
	DriverSQLite   StorageDriver = "sqlite"
	DriverBolt     StorageDriver = "bolt"
	DriverMemory   StorageDriver = "memory"
)

// DefaultMaxTreeDepth is the depth ceiling past which a tree is treated as corrupt
const DefaultMaxTreeDepth = 100

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrKeyNotSet is returned by providers when a key has no value
var ErrKeyNotSet = errors.New("configuration key not set")

// Provider defines the interface for configuration management
type Provider interface {
	// GetString retrieves a string configuration value
	GetString(ctx context.Context, key string) (string, error)
	// GetInt retrieves an integer configuration value
	GetInt(ctx context.Context, key string) (int, error)
	// GetBool retrieves a boolean configuration value
	GetBool(ctx context.Context, key string) (bool, error)
	// GetSecret retrieves a secret value
	GetSecret(ctx context.Context, key string) (string, error)
	// GetEnvironment returns the current environment
	GetEnvironment() Environment
}

// EnvProvider implements Provider using environment variables
type EnvProvider struct {
	prefix      string
	environment Environment
}

// NewEnvProvider creates a new environment-based configuration provider
func NewEnvProvider(prefix string) Provider {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = string(Development)
	}
	return &EnvProvider{
		prefix:      prefix,
		environment: Environment(env),
	}
}

// GetEnvironment returns the current environment
func (p *EnvProvider) GetEnvironment() Environment {
	return p.environment
}

// GetString retrieves a string configuration value from environment variables
func (p *EnvProvider) GetString(ctx context.Context, key string) (string, error) {
	value := os.Getenv(p.prefix + key)
	if value == "" {
		return "", fmt.Errorf("environment variable %s%s: %w", p.prefix, key, ErrKeyNotSet)
	}
	return value, nil
}

// GetInt retrieves an integer configuration value from environment variables
func (p *EnvProvider) GetInt(ctx context.Context, key string) (int, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

// GetBool retrieves a boolean configuration value from environment variables
func (p *EnvProvider) GetBool(ctx context.Context, key string) (bool, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}

// GetSecret retrieves a secret value from environment variables
func (p *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.GetString(ctx, key)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the struct tags and reports the first failure as a ValidationError
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), redact(fe)),
		}
	}
	return err
}

func redact(fe validator.FieldError) any {
	if strings.Contains(strings.ToLower(fe.Field()), "password") {
		return "[redacted]"
	}
	return fe.Value()
}

// AppConfig holds the service settings
type AppConfig struct {
	Environment   Environment
	Port          int           `validate:"min=1,max=65535"`
	StorageDriver StorageDriver `validate:"oneof=postgres sqlite bolt memory"`
	SQLitePath    string        `validate:"required_if=StorageDriver sqlite"`
	BoltPath      string        `validate:"required_if=StorageDriver bolt"`
	MaxTreeDepth  int           `validate:"min=1,max=10000"`
	CacheTTL      time.Duration `validate:"gte=0s"`
	MutationRoles []string      `validate:"min=1,dive,required"`
}

// GetAppConfig reads the service settings, falling back to defaults for
// anything the provider does not set
func GetAppConfig(ctx context.Context, provider Provider) (*AppConfig, error) {
	cfg := &AppConfig{
		Environment:   provider.GetEnvironment(),
		Port:          8080,
		StorageDriver: DriverPostgres,
		SQLitePath:    "knowledge_tree.db",
		BoltPath:      "knowledge_tree.bolt",
		MaxTreeDepth:  DefaultMaxTreeDepth,
		CacheTTL:      5 * time.Minute,
		MutationRoles: []string{"admin", "teacher"},
	}

	if port, err := provider.GetInt(ctx, "APP_PORT"); err == nil {
		cfg.Port = port
	} else if !errors.Is(err, ErrKeyNotSet) {
		return nil, fmt.Errorf("failed to get APP_PORT: %w", err)
	}

	if driver, err := provider.GetString(ctx, "STORAGE_DRIVER"); err == nil {
		cfg.StorageDriver = StorageDriver(strings.ToLower(driver))
	}
	if path, err := provider.GetString(ctx, "SQLITE_PATH"); err == nil {
		cfg.SQLitePath = path
	}
	if path, err := provider.GetString(ctx, "BOLT_PATH"); err == nil {
		cfg.BoltPath = path
	}

	if depth, err := provider.GetInt(ctx, "MAX_TREE_DEPTH"); err == nil {
		cfg.MaxTreeDepth = depth
	} else if !errors.Is(err, ErrKeyNotSet) {
		return nil, fmt.Errorf("failed to get MAX_TREE_DEPTH: %w", err)
	}

	if raw, err := provider.GetString(ctx, "CACHE_TTL"); err == nil {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, &ValidationError{Field: "CacheTTL", Message: "must be a duration such as 5m"}
		}
		cfg.CacheTTL = ttl
	}

	if raw, err := provider.GetString(ctx, "MUTATION_ROLES"); err == nil {
		var roles []string
		for _, role := range strings.Split(raw, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
		cfg.MutationRoles = roles
	}

	if err := validateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid app configuration: %w", err)
	}
	return cfg, nil
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `validate:"required,hostname_rfc1123|ip"`
	Port     int    `validate:"min=1,max=65535"`
	User     string `validate:"required"`
	Password string `validate:"required"`
	DBName   string `validate:"required"`
	SSLMode  string `validate:"oneof=disable require verify-ca verify-full"`
}

var (
	dbNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	upperPattern  = regexp.MustCompile(`[A-Z]`)
	lowerPattern  = regexp.MustCompile(`[a-z]`)
	digitPattern  = regexp.MustCompile(`[0-9]`)
	symbolPattern = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// Validate checks if the database configuration is valid
func (c *DatabaseConfig) Validate(env Environment) error {
	if err := validateStruct(c); err != nil {
		return err
	}

	if !dbNamePattern.MatchString(c.DBName) {
		return &ValidationError{Field: "DBName", Message: "database name must start with a letter and contain only letters, numbers, and underscores"}
	}

	if env == Production {
		if strings.EqualFold(c.Host, "localhost") {
			return &ValidationError{Field: "Host", Message: "localhost is not allowed in production"}
		}
		if c.SSLMode == "disable" {
			return &ValidationError{Field: "SSLMode", Message: "SSL cannot be disabled in production"}
		}
		if err := checkPasswordStrength(c.Password); err != nil {
			return err
		}
	}

	return nil
}

// checkPasswordStrength applies the production password policy
func checkPasswordStrength(password string) error {
	switch {
	case len(password) < 12:
		return &ValidationError{Field: "Password", Message: "password must be at least 12 characters long in production"}
	case !upperPattern.MatchString(password):
		return &ValidationError{Field: "Password", Message: "password must contain at least one uppercase letter in production"}
	case !lowerPattern.MatchString(password):
		return &ValidationError{Field: "Password", Message: "password must contain at least one lowercase letter in production"}
	case !digitPattern.MatchString(password):
		return &ValidationError{Field: "Password", Message: "password must contain at least one number in production"}
	case !symbolPattern.MatchString(password):
		return &ValidationError{Field: "Password", Message: "password must contain at least one special character in production"}
	}
	return nil
}

// DSN renders the lib/pq connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// GetDatabaseConfig retrieves database configuration using the provided config provider
func GetDatabaseConfig(ctx context.Context, provider Provider) (*DatabaseConfig, error) {
	host, err := provider.GetString(ctx, "DB_HOST")
	if err != nil {
		return nil, fmt.Errorf("failed to get DB_HOST: %w", err)
	}

	port, err := provider.GetInt(ctx, "DB_PORT")
	if err != nil {
		return nil, fmt.Errorf("failed to get DB_PORT: %w", err)
	}

	user, err := provider.GetString(ctx, "DB_USER")
	if err != nil {
		return nil, fmt.Errorf("failed to get DB_USER: %w", err)
	}

	password, err := provider.GetSecret(ctx, "DB_PASSWORD")
	if err != nil {
		return nil, fmt.Errorf("failed to get DB_PASSWORD: %w", err)
	}

	dbname, err := provider.GetString(ctx, "DB_NAME")
	if err != nil {
		return nil, fmt.Errorf("failed to get DB_NAME: %w", err)
	}

	sslmode, err := provider.GetString(ctx, "DB_SSLMODE")
	if err != nil {
		sslmode = "disable" // Default to disable if not set
	}

	cfg := &DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		DBName:   dbname,
		SSLMode:  sslmode,
	}

	if err := cfg.Validate(provider.GetEnvironment()); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	return cfg, nil
}
