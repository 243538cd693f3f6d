package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvOwner       = "FLASHARB_OWNER"
	EnvPoolAddress = "FLASHARB_POOL_ADDRESS"
	EnvSlippageBps = "FLASHARB_SLIPPAGE_BPS"
	EnvMinProfit   = "FLASHARB_MIN_PROFIT"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
