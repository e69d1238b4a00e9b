package config

import (
	"os"
	"path/filepath"
)

// discoverClientDir probes for the bundled web client when DUEL_CLIENT_DIR
// is unset: a web directory next to the working directory first, then next
// to the executable. Empty means no client found; the server then runs
// API-only.
func discoverClientDir() string {
	if cwd, err := os.Getwd(); err == nil {
		if dir, ok := clientDirFrom(cwd); ok {
			return dir
		}
	}
	if exePath, err := os.Executable(); err == nil {
		if dir, ok := clientDirFrom(filepath.Dir(exePath)); ok {
			return dir
		}
	}
	return ""
}

func clientDirFrom(base string) (string, bool) {
	candidates := []string{
		filepath.Join(base, "web"),
		filepath.Join(base, "..", "web"),
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || !info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		return abs, true
	}
	return "", false
}
