package settings

import (
	"os"
	"path/filepath"
)

const CmdName = "probeopt"

// DefaultCacheDir is used when no cache directory is supplied on the CLI.
func DefaultCacheDir() string {
	return filepath.Join(os.TempDir(), CmdName)
}
