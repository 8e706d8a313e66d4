// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// GetSpindleDataDir returns the Spindle data directory.
//
// Priority:
// 1. SPINDLE_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.spindle (default)
//
// The returned path is always absolute. Tilde (~) is expanded to the
// user's home directory; relative paths are made absolute.
//
// This function is called during bootstrap, before the config file is
// loaded, to locate the config file itself. It reads os.Getenv directly
// rather than viper to avoid a circular dependency during initialization.
func GetSpindleDataDir() string {
	if dataDir := os.Getenv("SPINDLE_DATA_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".spindle"
	}
	return filepath.Join(homeDir, ".spindle")
}

// GetSpindleSubDir returns a subdirectory within the Spindle data
// directory. Example: GetSpindleSubDir("uploads") returns ~/.spindle/uploads.
func GetSpindleSubDir(subdir string) string {
	return filepath.Join(GetSpindleDataDir(), subdir)
}

// expandPath expands ~ and resolves to absolute path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
