package config

import (
	"github.com/joho/godotenv"
)

// loadDotenv loads a local .env file when present. The file is optional in
// production where variables come from the environment directly.
func loadDotenv() {
	_ = godotenv.Load()
}
