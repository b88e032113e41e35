// Package config reads runtime settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Port            string
	ClientOrigin    string
	PublicDir       string
	ShutdownTimeout time.Duration
	LogLevel        string

	StoreDriver   string
	DataFile      string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	AMQPURL      string
	AMQPExchange string

	MetricsToken   string
	WriteRateLimit int
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoienv(k string, def int) int {
	v := getenv(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvs(k string, defSec int) time.Duration {
	return time.Duration(atoienv(k, defSec)) * time.Second
}

// Load collects configuration from the environment with defaults.
func Load() Config {
	return Config{
		Port:            getenv("PORT", "3000"),
		ClientOrigin:    getenv("CLIENT_ORIGIN", "*"),
		PublicDir:       getenv("PUBLIC_DIR", "public"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 10),
		LogLevel:        getenv("LOG_LEVEL", "info"),

		StoreDriver:   strings.ToLower(getenv("STORE_DRIVER", DriverFile)),
		DataFile:      getenv("DATA_FILE", "data/products_db.json"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		MongoURI:      getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getenv("MONGO_DATABASE", "inventory"),

		AMQPURL:      getenv("AMQP_URL", ""),
		AMQPExchange: getenv("AMQP_EXCHANGE", "inventory.products"),

		MetricsToken:   getenv("METRICS_TOKEN", ""),
		WriteRateLimit: atoienv("WRITE_RATE_LIMIT", 0),
	}
}

func (c Config) Addr() string {
	return ":" + c.Port
}
