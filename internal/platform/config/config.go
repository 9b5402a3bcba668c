package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL    string
	Port           string
	IsProduction   bool
	AllowedOrigins []string

	// BaseCurrency is the currency the balance invariant is checked in.
	BaseCurrency string
	// DefaultCostBasisMethod applies to instruments created without an
	// explicit method (FIFO or AVERAGE).
	DefaultCostBasisMethod string

	// Dividend processing posts against these accounts.
	DividendCashAccountID   string
	DividendIncomeAccountID string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ALLOWED_ORIGINS", "")
	viper.SetDefault("BASE_CURRENCY", "USD")
	viper.SetDefault("DEFAULT_COST_BASIS_METHOD", "FIFO")
	viper.SetDefault("DIVIDEND_CASH_ACCOUNT_ID", "")
	viper.SetDefault("DIVIDEND_INCOME_ACCOUNT_ID", "")

	viper.AutomaticEnv()

	cfg := &Config{
		DatabaseURL:             viper.GetString("PGSQL_URL"),
		Port:                    viper.GetString("PORT"),
		IsProduction:            viper.GetBool("IS_PRODUCTION"),
		AllowedOrigins:          splitOrigins(viper.GetString("ALLOWED_ORIGINS")),
		BaseCurrency:            viper.GetString("BASE_CURRENCY"),
		DefaultCostBasisMethod:  viper.GetString("DEFAULT_COST_BASIS_METHOD"),
		DividendCashAccountID:   viper.GetString("DIVIDEND_CASH_ACCOUNT_ID"),
		DividendIncomeAccountID: viper.GetString("DIVIDEND_INCOME_ACCOUNT_ID"),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}
	if cfg.DividendCashAccountID == "" || cfg.DividendIncomeAccountID == "" {
		log.Println("Warning: dividend account IDs not set. Cash dividend processing will be rejected until configured.")
	}

	return cfg, nil
}

// splitOrigins parses a comma separated origin list.
func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
