package utils

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/lepinkainen/imgmin/config"
)

// ValidateCompressor checks that the configured compressor can be found.
// A WebAssembly module must be a readable file, a native binary must be in PATH.
func ValidateCompressor(cfg config.Compressor) (string, error) {
	if cfg.Wasm != "" {
		info, err := os.Stat(cfg.Wasm)
		if err != nil {
			return "", fmt.Errorf("compressor module %s not readable: %w", cfg.Wasm, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("compressor module %s is a directory", cfg.Wasm)
		}
		return cfg.Wasm, nil
	}

	if cfg.Binary == "" {
		return "", fmt.Errorf("no compressor configured. %s", getInstallationInstructions())
	}

	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH. %s", cfg.Binary, getInstallationInstructions())
	}
	return path, nil
}

// getInstallationInstructions returns platform-specific installation instructions
func getInstallationInstructions() string {
	switch runtime.GOOS {
	case "darwin":
		return "Install with: brew install ect"
	case "linux":
		return "Install with: apt-get install ect (Debian/Ubuntu) or build from https://github.com/fhanau/Efficient-Compression-Tool"
	case "windows":
		return "Download from https://github.com/fhanau/Efficient-Compression-Tool/releases and add to PATH"
	default:
		return "Download from https://github.com/fhanau/Efficient-Compression-Tool"
	}
}
