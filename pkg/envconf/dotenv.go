package envconf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadWithDotenv loads the given .env files (default ".env") into the process
// environment and then decodes dst. Missing files are skipped; variables
// already set in the environment win over file values.
func LoadWithDotenv(dst any, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		_, err := os.Stat(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		err = godotenv.Load(f)
		if err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	return Load(dst)
}
