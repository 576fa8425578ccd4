package config // package config loads application configuration from environment variables

import (
	"log" // log reports configuration errors and halts execution
	"os"  // os provides access to environment variables
)

// Config holds the infrastructure-level runtime configuration.  Each field
// corresponds to an environment variable; the engine-level knobs live in
// LotteryConfig.
type Config struct {
	Env         string // application environment (e.g. "dev", "prod")
	Port        string // HTTP port to listen on
	DBUser      string // database username
	DBPass      string // database password (optional)
	DBHost      string // database host address
	DBPort      string // database port number
	DBName      string // database name
	JWTSecret   string // secret used to sign admin JWTs
	AdminTTLMin int    // admin token time-to-live in minutes
	AdminUser   string // admin login name
	AdminHash   string // bcrypt hash of the admin password
	AMQPUrl     string // message broker URL (empty disables publishing)
}

// Load reads configuration from environment variables.  Required variables
// are enforced by must() and missing values cause the program to exit with
// a fatal log message.
func Load() Config {
	return Config{
		Env:         must("APP_ENV"),
		Port:        must("APP_PORT"),
		DBUser:      must("DB_USER"),
		DBPass:      os.Getenv("DB_PASS"), // empty allowed
		DBHost:      must("DB_HOST"),
		DBPort:      must("DB_PORT"),
		DBName:      must("DB_NAME"),
		JWTSecret:   must("JWT_SECRET"),
		AdminTTLMin: envInt("ADMIN_TOKEN_TTL_MIN", 60),
		AdminUser:   envStr("ADMIN_USER", "admin"),
		AdminHash:   os.Getenv("ADMIN_PASSWORD_HASH"),
		AMQPUrl:     os.Getenv("AMQP_URL"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
