/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the tenancy service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort          string `mapstructure:"SERVER_PORT"`
	DatabaseURL         string `mapstructure:"DATABASE_URL"`
	RabbitMQURL         string `mapstructure:"RABBITMQ_URL"`
	VaultAPIBaseURL     string `mapstructure:"VAULT_API_BASE_URL"`
	VaultAPIKey         string `mapstructure:"VAULT_API_KEY"`
	DirectoryServiceURL string `mapstructure:"DIRECTORY_SERVICE_URL"`
	DirectoryAPIKey     string `mapstructure:"DIRECTORY_INTERNAL_API_KEY"`
	InternalAPIKey      string `mapstructure:"INTERNAL_API_KEY"`
	JWTSecret           string `mapstructure:"JWT_SECRET"`

	// Lifecycle policy tunables.
	DepositMonths          int `mapstructure:"SECURITY_DEPOSIT_MONTHS"`
	RentGraceHours         int `mapstructure:"RENT_GRACE_HOURS"`
	TerminationHoldDays    int `mapstructure:"TERMINATION_HOLD_DAYS"`
	AutoPayLeadHours       int `mapstructure:"AUTO_PAY_LEAD_HOURS"`
	MaxReconcileAttempts   int `mapstructure:"MAX_RECONCILE_ATTEMPTS"`
	ReconcileBatchLimit    int `mapstructure:"RECONCILE_BATCH_LIMIT"`

	// Cron schedules.
	RentSweepSchedule        string `mapstructure:"RENT_SWEEP_SCHEDULE"`
	AutoPaySchedule          string `mapstructure:"AUTO_PAY_SCHEDULE"`
	ReconcileSchedule        string `mapstructure:"RECONCILE_SCHEDULE"`
	TerminationSweepSchedule string `mapstructure:"TERMINATION_SWEEP_SCHEDULE"`
	VisitSweepSchedule       string `mapstructure:"VISIT_SWEEP_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SECURITY_DEPOSIT_MONTHS", 2)
	viper.SetDefault("RENT_GRACE_HOURS", 72)
	viper.SetDefault("TERMINATION_HOLD_DAYS", 60)
	viper.SetDefault("AUTO_PAY_LEAD_HOURS", 24)
	viper.SetDefault("MAX_RECONCILE_ATTEMPTS", 10)
	viper.SetDefault("RECONCILE_BATCH_LIMIT", 100)
	viper.SetDefault("RENT_SWEEP_SCHEDULE", "0 6 * * *")        // Daily at 06:00.
	viper.SetDefault("AUTO_PAY_SCHEDULE", "0 7 * * *")          // Daily at 07:00, after the sweep.
	viper.SetDefault("RECONCILE_SCHEDULE", "*/2 * * * *")       // Every two minutes.
	viper.SetDefault("TERMINATION_SWEEP_SCHEDULE", "0 5 * * *") // Daily at 05:00.
	viper.SetDefault("VISIT_SWEEP_SCHEDULE", "30 * * * *")      // Hourly.

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("VAULT_API_BASE_URL")
	_ = viper.BindEnv("VAULT_API_KEY")
	_ = viper.BindEnv("DIRECTORY_SERVICE_URL")
	_ = viper.BindEnv("DIRECTORY_INTERNAL_API_KEY")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "TENANCY_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("SECURITY_DEPOSIT_MONTHS")
	_ = viper.BindEnv("RENT_GRACE_HOURS")
	_ = viper.BindEnv("TERMINATION_HOLD_DAYS")
	_ = viper.BindEnv("AUTO_PAY_LEAD_HOURS")
	_ = viper.BindEnv("MAX_RECONCILE_ATTEMPTS")
	_ = viper.BindEnv("RECONCILE_BATCH_LIMIT")
	_ = viper.BindEnv("RENT_SWEEP_SCHEDULE")
	_ = viper.BindEnv("AUTO_PAY_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("TERMINATION_SWEEP_SCHEDULE")
	_ = viper.BindEnv("VISIT_SWEEP_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	if config.DepositMonths <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive deposit months configured; using default\" months=%d", config.DepositMonths)
		config.DepositMonths = 2
	}
	if config.RentGraceHours < 0 {
		config.RentGraceHours = 72
	}
	if config.TerminationHoldDays <= 0 {
		config.TerminationHoldDays = 60
	}
	if config.AutoPayLeadHours <= 0 {
		config.AutoPayLeadHours = 24
	}
	if config.MaxReconcileAttempts <= 0 {
		config.MaxReconcileAttempts = 10
	}
	if config.ReconcileBatchLimit <= 0 {
		config.ReconcileBatchLimit = 100
	}

	return
}

// RentGraceWindow returns the grace window as a duration.
func (c *Config) RentGraceWindow() time.Duration {
	return time.Duration(c.RentGraceHours) * time.Hour
}

// TerminationHold returns the deposit hold period as a duration.
func (c *Config) TerminationHold() time.Duration {
	return time.Duration(c.TerminationHoldDays) * 24 * time.Hour
}

// AutoPayLeadTime returns how far ahead of a due date auto-pay runs.
func (c *Config) AutoPayLeadTime() time.Duration {
	return time.Duration(c.AutoPayLeadHours) * time.Hour
}
