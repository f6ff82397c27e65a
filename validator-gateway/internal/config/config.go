package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime settings for the validator gateway.
type Config struct {
	Addr           string
	PrivateKeyPath string
	PublicKeyPath  string
	SignerID       string

	ValidatorURL      string
	ValidatorPath     string
	ValidatorTimeout  time.Duration
	ValidatorRetries  int
	MajorityThreshold float64
	MaxImageBytes     int
	MaxImagePixels    int
	MaxGIFFrames      int

	DatabaseURL  string
	KafkaBrokers []string
	KafkaTopic   string
	S3Bucket     string
	S3Prefix     string

	CredentialTokenTTL     time.Duration
	RequireCredentialToken bool
}

const (
	defaultAddr              = ":47927"
	defaultPrivateKeyPath    = "private_key.pem"
	defaultPublicKeyPath     = "public_key.pem"
	defaultSignerID          = "validator-gateway"
	defaultValidatorURL      = "http://44.201.142.122:47923"
	defaultValidatorPath     = "/validator_proxy"
	defaultValidatorTimeout  = 10 * time.Second
	defaultMajorityThreshold = 0.5
	defaultMaxImageBytes     = 10 << 20 // 10MB
	defaultMaxImagePixels    = 25_000_000
	defaultMaxGIFFrames      = 500
)

// Load reads environment variables and returns a Config.
func Load() (Config, error) {
	cfg := Config{
		Addr:                   getEnv("GATEWAY_ADDR", defaultAddr),
		PrivateKeyPath:         getEnv("GATEWAY_PRIVATE_KEY_PATH", defaultPrivateKeyPath),
		PublicKeyPath:          getEnv("GATEWAY_PUBLIC_KEY_PATH", defaultPublicKeyPath),
		SignerID:               getEnv("GATEWAY_SIGNER_ID", defaultSignerID),
		ValidatorURL:           getEnv("VALIDATOR_URL", defaultValidatorURL),
		ValidatorPath:          getEnv("VALIDATOR_PATH", defaultValidatorPath),
		ValidatorTimeout:       getDuration("VALIDATOR_TIMEOUT", defaultValidatorTimeout),
		ValidatorRetries:       getInt("VALIDATOR_RETRIES", 0),
		MajorityThreshold:      getFloat("MAJORITY_THRESHOLD", defaultMajorityThreshold),
		MaxImageBytes:          getInt("MAX_IMAGE_BYTES", defaultMaxImageBytes),
		MaxImagePixels:         getInt("MAX_IMAGE_PIXELS", defaultMaxImagePixels),
		MaxGIFFrames:           getInt("MAX_GIF_FRAMES", defaultMaxGIFFrames),
		DatabaseURL:            firstNonEmpty(os.Getenv("GATEWAY_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		KafkaBrokers:           splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:             strings.TrimSpace(os.Getenv("KAFKA_TOPIC")),
		S3Bucket:               strings.TrimSpace(os.Getenv("S3_BUCKET")),
		S3Prefix:               strings.TrimSpace(os.Getenv("S3_PREFIX")),
		CredentialTokenTTL:     getDuration("CREDENTIAL_TOKEN_TTL", 0),
		RequireCredentialToken: getBool("REQUIRE_CREDENTIAL_TOKEN", false),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. It is also called after command-line
// overrides are applied.
func (c Config) Validate() error {
	if c.PrivateKeyPath == "" || c.PublicKeyPath == "" {
		return fmt.Errorf("GATEWAY_PRIVATE_KEY_PATH and GATEWAY_PUBLIC_KEY_PATH are required")
	}
	if c.ValidatorURL == "" {
		return fmt.Errorf("VALIDATOR_URL is required")
	}
	if c.MajorityThreshold <= 0 || c.MajorityThreshold >= 1 {
		return fmt.Errorf("MAJORITY_THRESHOLD must be within (0,1), got %v", c.MajorityThreshold)
	}
	if c.MaxImagePixels <= 0 || c.MaxGIFFrames <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS and MAX_GIF_FRAMES must be positive")
	}
	if c.RequireCredentialToken && c.CredentialTokenTTL <= 0 {
		return fmt.Errorf("REQUIRE_CREDENTIAL_TOKEN needs a positive CREDENTIAL_TOKEN_TTL")
	}
	if (len(c.KafkaBrokers) == 0) != (c.KafkaTopic == "") {
		return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC must be set together")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		ok, err := strconv.ParseBool(v)
		if err == nil {
			return ok
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getDuration accepts Go duration strings ("15s") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
