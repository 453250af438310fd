package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from a .env file and environment variables.
// prefix: environment variable prefix (e.g. "INSIGHT_")
// target: pointer to the config struct to load into
func Load(prefix string, target interface{}) error {
	v := viper.New()

	// .env is optional; a missing file is not an error.
	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read .env: %w", err)
		}
	}

	// Viper's AutomaticEnv does not play well with Unmarshal when the keys are
	// not already known, so populate it from the environment by hand.
	// INSIGHT_DATABASE_HOST -> database.host
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		key, value := pair[0], pair[1]

		if strings.HasPrefix(key, prefixUpper) {
			propKey := strings.TrimPrefix(key, prefixUpper)
			propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
			propKey = strings.TrimPrefix(propKey, ".")

			v.Set(propKey, value)
		}
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}
