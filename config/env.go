package config

import (
	"github.com/joho/godotenv"
)

// LoadEnv reads a local .env file into the process environment. A missing
// file is not fatal: deployments set the variables directly.
func LoadEnv(files ...string) {
	err := godotenv.Load(files...)

	if err != nil {
		Logger.Warn("Error loading .env file, will use environment variables instead: ", err)
	}
}
