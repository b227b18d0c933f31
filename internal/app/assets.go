package app

import (
	"fmt"
	"os"
	"path/filepath"
)

func resolvePublicDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve public assets: %w", err)
	}
	if dir, ok := resolvePublicDirFrom(cwd); ok {
		return dir, nil
	}
	exePath, err := os.Executable()
	if err == nil {
		if dir, ok := resolvePublicDirFrom(filepath.Dir(exePath)); ok {
			return dir, nil
		}
	}
	return "", fmt.Errorf("public assets directory not found")
}

func resolvePublicDirFrom(base string) (string, bool) {
	candidates := []string{
		filepath.Join(base, "public"),
		filepath.Join(base, "..", "public"),
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
