package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev".
	Mode string
	// Addr is the binding address for the server.
	Addr string
	// Port is the binding port for the server.
	Port int
	// Data is the data directory.
	Data string
	// Driver is the database driver: sqlite or postgres.
	Driver string
	// DSN is the database source name.
	DSN string
	// Version is the current version of the server.
	Version string

	// Generation provider configuration (OpenAI-compatible protocol).
	GenProvider    string
	GenModel       string
	GenAPIKey      string
	GenBaseURL     string
	GenMaxTokens   int
	GenTimeout     int
	GenTemperature float32
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

// FromEnv loads the generation provider configuration from environment
// variables.
func (p *Profile) FromEnv() {
	p.GenProvider = getEnvOrDefault("CHATD_GEN_PROVIDER", "openai")
	p.GenModel = getEnvOrDefault("CHATD_GEN_MODEL", "")
	p.GenAPIKey = getEnvOrDefault("CHATD_GEN_API_KEY", "")
	p.GenBaseURL = getEnvOrDefault("CHATD_GEN_BASE_URL", "")
	p.GenMaxTokens = getEnvOrDefaultInt("CHATD_GEN_MAX_TOKENS", 2048)
	p.GenTimeout = getEnvOrDefaultInt("CHATD_GEN_TIMEOUT_SECONDS", 300)
	p.GenTemperature = getEnvOrDefaultFloat32("CHATD_GEN_TEMPERATURE", 0.7)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies.
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unknown db driver: %s", p.Driver)
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("chatd_%s.db", p.Mode))
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn required for postgres driver")
	}

	return nil
}
