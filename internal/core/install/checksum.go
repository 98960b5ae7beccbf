package install

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() // nolint:errcheck // read-only handle

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// checksumMatches reports whether the file at path hashes to expected.
func checksumMatches(path, expected string) (bool, string, error) {
	actual, err := fileSHA256(path)
	if err != nil {
		return false, "", err
	}
	return strings.EqualFold(actual, strings.TrimSpace(expected)), actual, nil
}
