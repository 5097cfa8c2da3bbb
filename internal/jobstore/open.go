package jobstore

import (
	"os"
	"path/filepath"
)

// DefaultPath is the per-user location of the job file when no path is
// configured. Falls back to the working directory if the user config dir
// cannot be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "cronbot-jobs.json"
	}
	return filepath.Join(dir, "cronbot", "jobs.json")
}
