package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Auth0
	Auth0Domain   string
	Auth0Audience string

	// Server
	Port        string
	CORSOrigins []string
	Env         string

	// Lending defaults, overridable at runtime through the settings table
	Lending LendingConfig

	// Requests per minute a single member may submit to payment and contribution endpoints
	RateLimitPerMinute int

	// S3 Storage for payment receipts
	S3 S3Config
}

// LendingConfig holds the default lending policy
type LendingConfig struct {
	InterestRate       decimal.Decimal // percent per month
	MinPrincipal       decimal.Decimal
	MaxPrincipal       decimal.Decimal
	AllowedTerms       []int32
	ProgressMultiplier int32
}

// S3Config holds AWS S3 configuration
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional: for MinIO/LocalStack local dev
}

// Enabled reports whether receipt storage has been configured
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	lending, err := loadLending()
	if err != nil {
		return nil, err
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "60"))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be an integer: %w", err)
	}

	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Auth0Domain:        getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:      getEnv("AUTH0_AUDIENCE", ""),
		Port:               getEnv("PORT", "8080"),
		CORSOrigins:        strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:                getEnv("ENV", "development"),
		Lending:            lending,
		RateLimitPerMinute: rateLimit,
		S3: S3Config{
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          getEnv("S3_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""), // Empty = use AWS, set for MinIO/LocalStack
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadLending() (LendingConfig, error) {
	rate, err := decimal.NewFromString(getEnv("LOAN_INTEREST_RATE", "2"))
	if err != nil {
		return LendingConfig{}, fmt.Errorf("LOAN_INTEREST_RATE must be a decimal: %w", err)
	}
	minPrincipal, err := decimal.NewFromString(getEnv("LOAN_MIN_PRINCIPAL", "1000"))
	if err != nil {
		return LendingConfig{}, fmt.Errorf("LOAN_MIN_PRINCIPAL must be a decimal: %w", err)
	}
	maxPrincipal, err := decimal.NewFromString(getEnv("LOAN_MAX_PRINCIPAL", "50000"))
	if err != nil {
		return LendingConfig{}, fmt.Errorf("LOAN_MAX_PRINCIPAL must be a decimal: %w", err)
	}
	terms, err := ParseTerms(getEnv("LOAN_TERMS", "3,6,9,12"))
	if err != nil {
		return LendingConfig{}, fmt.Errorf("LOAN_TERMS: %w", err)
	}
	multiplier, err := strconv.Atoi(getEnv("PAYMENT_PROGRESS_MULTIPLIER", "2"))
	if err != nil {
		return LendingConfig{}, fmt.Errorf("PAYMENT_PROGRESS_MULTIPLIER must be an integer: %w", err)
	}

	return LendingConfig{
		InterestRate:       rate,
		MinPrincipal:       minPrincipal,
		MaxPrincipal:       maxPrincipal,
		AllowedTerms:       terms,
		ProgressMultiplier: int32(multiplier),
	}, nil
}

// ParseTerms parses a comma separated list of positive month counts
func ParseTerms(raw string) ([]int32, error) {
	parts := strings.Split(raw, ",")
	terms := make([]int32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid term %q", p)
		}
		terms = append(terms, int32(n))
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("at least one term is required")
	}
	return terms, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth0Domain == "" {
		return fmt.Errorf("AUTH0_DOMAIN is required")
	}
	if c.Auth0Audience == "" {
		return fmt.Errorf("AUTH0_AUDIENCE is required")
	}
	if c.Lending.InterestRate.IsNegative() {
		return fmt.Errorf("LOAN_INTEREST_RATE cannot be negative")
	}
	if !c.Lending.InterestRate.Equal(c.Lending.InterestRate.Truncate(4)) {
		return fmt.Errorf("LOAN_INTEREST_RATE cannot have more than 4 decimal places")
	}
	if !c.Lending.MinPrincipal.IsPositive() || c.Lending.MaxPrincipal.LessThan(c.Lending.MinPrincipal) {
		return fmt.Errorf("LOAN_MIN_PRINCIPAL must be positive and not above LOAN_MAX_PRINCIPAL")
	}
	if c.Lending.ProgressMultiplier < 1 {
		return fmt.Errorf("PAYMENT_PROGRESS_MULTIPLIER must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
