package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DirectoryURL     string        // ACME directory URL of the certificate authority
	ACMEVersion      int           // ACME protocol major version (1 or 2)
	DataDir          string        // Directory for the file storage backend
	StorageType      string        // Storage type: "file" or "postgres"
	DBHost           string        // PostgreSQL host
	DBUser           string        // PostgreSQL user
	DBPassword       string        // PostgreSQL password
	DBName           string        // PostgreSQL database name
	DBPort           int           // PostgreSQL port
	DBSSLMode        string        // PostgreSQL SSL mode
	ChallengeTypes   []string      // Challenge types in preference order
	ChallengeKeyType string        // Key type for challenge certificates: "rsa" or "ecdsa"
	ChallengeKeyBits int           // RSA key size for challenge certificates
	AccountKeyBits   int           // RSA key size for a newly generated account key
	HTTPTimeout      time.Duration // Timeout for a single ACME round-trip
}

const (
	defaultDirectoryURL     = "https://acme-v01.api.letsencrypt.org/directory"
	defaultACMEVersion      = 1
	defaultDataDir          = "./data"
	defaultStorageType      = "file"
	defaultDBHost           = "localhost"
	defaultDBUser           = "certproof"
	defaultDBPassword       = "password"
	defaultDBName           = "certproof"
	defaultDBPort           = 5432
	defaultDBSSLMode        = "disable"
	defaultChallengeTypes   = "http-01,tls-alpn-01,tls-sni-01"
	defaultChallengeKeyType = "rsa"
	defaultChallengeKeyBits = 2048
	defaultAccountKeyBits   = 4096
	defaultHTTPTimeoutSecs  = 30
)

// LoadConfig loads the client configuration from environment variables or defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DirectoryURL:     getEnv("CERTPROOF_DIRECTORY_URL", defaultDirectoryURL),
		ACMEVersion:      getEnvAsInt("CERTPROOF_ACME_VERSION", defaultACMEVersion),
		DataDir:          getEnv("CERTPROOF_DATA_DIR", defaultDataDir),
		StorageType:      getEnv("CERTPROOF_STORAGE_TYPE", defaultStorageType),
		DBHost:           getEnv("CERTPROOF_DB_HOST", defaultDBHost),
		DBUser:           getEnv("CERTPROOF_DB_USER", defaultDBUser),
		DBPassword:       getEnv("CERTPROOF_DB_PASSWORD", defaultDBPassword),
		DBName:           getEnv("CERTPROOF_DB_NAME", defaultDBName),
		DBPort:           getEnvAsInt("CERTPROOF_DB_PORT", defaultDBPort),
		DBSSLMode:        getEnv("CERTPROOF_DB_SSLMODE", defaultDBSSLMode),
		ChallengeTypes:   splitList(getEnv("CERTPROOF_CHALLENGES", defaultChallengeTypes)),
		ChallengeKeyType: getEnv("CERTPROOF_CHALLENGE_KEY_TYPE", defaultChallengeKeyType),
		ChallengeKeyBits: getEnvAsInt("CERTPROOF_CHALLENGE_KEY_BITS", defaultChallengeKeyBits),
		AccountKeyBits:   getEnvAsInt("CERTPROOF_ACCOUNT_KEY_BITS", defaultAccountKeyBits),
		HTTPTimeout:      time.Duration(getEnvAsInt("CERTPROOF_HTTP_TIMEOUT", defaultHTTPTimeoutSecs)) * time.Second,
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s (%s), using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
