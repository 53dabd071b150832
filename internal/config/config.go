package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisURL string

	ServerPort string

	JWTSecret         string
	AdminUsername     string
	AdminPasswordHash string

	// CronSecret guards the scheduled-job endpoints. The external scheduler
	// must send it in X-Cron-Secret; with no secret configured the
	// endpoints refuse everything.
	CronSecret string

	// GCMSendURL is the Google connection server endpoint. Overridable so
	// staging can point at a local stub server.
	GCMSendURL string

	// CounterShards is the shard count for the registration counters.
	CounterShards int

	// RetryTransportErrors re-enqueues a whole batch when the send fails at
	// the transport level (timeout, TLS, DNS). Off by default: retrying a
	// gateway outage from every worker only amplifies the outage.
	RetryTransportErrors bool

	WorkerCount int
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	gcmSendURL := os.Getenv("GCM_SEND_URL")
	if gcmSendURL == "" {
		gcmSendURL = "https://android.googleapis.com/gcm/send"
	}

	counterShards, err := strconv.Atoi(os.Getenv("COUNTER_SHARDS"))
	if err != nil || counterShards <= 0 {
		counterShards = 20
	}

	workerCount, err := strconv.Atoi(os.Getenv("WORKER_COUNT"))
	if err != nil || workerCount <= 0 {
		workerCount = 2
	}

	retryTransport := false
	if v, err := strconv.ParseBool(os.Getenv("RETRY_TRANSPORT_ERRORS")); err == nil {
		retryTransport = v
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		RedisURL: redisURL,

		ServerPort: serverPort,

		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminUsername:     os.Getenv("ADMIN_USERNAME"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		CronSecret:        os.Getenv("CRON_SECRET"),

		GCMSendURL: gcmSendURL,

		CounterShards: counterShards,

		RetryTransportErrors: retryTransport,

		WorkerCount: workerCount,
	}, nil
}
