package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string
	Store       string // mongo | memory

	// Escalation scheduler
	EscalationInterval time.Duration
	EscalationWorkers  int
	EscalationBatch    int

	// Delegation policy
	AllowMultipleDelegations bool
	DelegationApproval       string        // direct | upper_leader | top_leader | admin
	RequestDelegationTTL     time.Duration // window of ad-hoc delegations made through a decision

	EventBuffer int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "go-approval"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "go-approval"),
		Store:       getEnv("STORE", StoreMongo),

		EscalationInterval: getDuration("ESCALATION_INTERVAL", time.Minute),
		EscalationWorkers:  getInt("ESCALATION_WORKERS", 8),
		EscalationBatch:    getInt("ESCALATION_BATCH", 500),

		AllowMultipleDelegations: getEnv("ALLOW_MULTIPLE_DELEGATIONS", "false") == "true",
		DelegationApproval:       getEnv("DELEGATION_APPROVAL", "direct"),
		RequestDelegationTTL:     getDuration("REQUEST_DELEGATION_TTL", 72*time.Hour),

		EventBuffer: getInt("EVENT_BUFFER", 256),
	}, nil
}

// IsProduction reports whether the service runs with production logging.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
