// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves the Zotero and summarizer credentials from the
// process environment, a .env file, and a directory of plain-text key files.
//
// In a secrets directory each file is one secret: the filename is the key
// name and the trimmed contents are the value. Recognized key files:
// zotero-library-id, zotero-api-key, zotero-collection-key,
// anthropic-api-key, cohere-api-key.
package secrets

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// Environment variable names.
const (
	EnvLibraryID     = "ZOTERO_LIBRARY_ID"
	EnvAPIKey        = "ZOTERO_API_KEY"
	EnvCollectionKey = "ZOTERO_COLLECTION_KEY"
	EnvAnthropicKey  = "ANTHROPIC_API_KEY"
	EnvCohereKey     = "COHERE_API_KEY"
)

// fileNames maps each environment variable to its key file name.
var fileNames = map[string]string{
	EnvLibraryID:     "zotero-library-id",
	EnvAPIKey:        "zotero-api-key",
	EnvCollectionKey: "zotero-collection-key",
	EnvAnthropicKey:  "anthropic-api-key",
	EnvCohereKey:     "cohere-api-key",
}

// Warnings receives notices about unreadable key files.
var Warnings io.Writer = os.Stderr

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(Warnings, "warning: could not read secret %s: %v\n", name, err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// LoadCredentials resolves credentials with precedence process environment,
// then envFile, then the key files in dir. Neither source file is required.
// The summarizer key is read for the selected backend. Missing library ID or
// API key is an ErrConfiguration.
func LoadCredentials(envFile, dir string, backend types.SummaryBackend) (types.Credentials, error) {
	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return types.Credentials{}, fmt.Errorf("%w: reading %s: %v", types.ErrConfiguration, envFile, err)
		}
	}

	files, err := Load(dir)
	if err != nil {
		return types.Credentials{}, err
	}

	lookup := func(env string) string {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
		if v := strings.TrimSpace(dotenv[env]); v != "" {
			return v
		}
		return files[fileNames[env]]
	}

	creds := types.Credentials{
		LibraryID:     lookup(EnvLibraryID),
		APIKey:        lookup(EnvAPIKey),
		CollectionKey: lookup(EnvCollectionKey),
	}
	switch backend {
	case types.BackendCohere:
		creds.SummaryAPIKey = lookup(EnvCohereKey)
	default:
		creds.SummaryAPIKey = lookup(EnvAnthropicKey)
	}
	return creds, creds.Validate()
}
