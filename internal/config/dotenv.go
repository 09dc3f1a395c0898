package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotenv loads a KEY=VALUE file into the process environment via
// godotenv. Variables already present in the environment win, matching
// the original launcher's dotenv behavior. A missing file is not an
// error.
func LoadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}
