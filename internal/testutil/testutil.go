// Package testutil provides testing utilities and helpers for reldb.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jochuuuu/reldb/internal/engine"
)

// TempEngine opens a fresh Engine rooted at a temporary directory, with
// separate data and index subdirectories, and registers its cleanup.
func TempEngine(t *testing.T) *engine.Engine {
	t.Helper()

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	indexDir := filepath.Join(dir, "index")

	eng, err := engine.Open(dataDir, indexDir)
	if err != nil {
		t.Fatalf("failed to open test engine: %v", err)
	}

	return eng
}

// TempDir creates a temporary directory for testing.
// Automatically cleaned up after test completion.
func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// TempFile creates a temporary file for testing.
// Automatically cleaned up after test completion.
func TempFile(t *testing.T, name string, content []byte) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	return path
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

// AssertEqual fails the test if got != want.
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()

	if got != want {
		t.Errorf("Got %v, want %v", got, want)
	}
}

// AssertStringContains fails the test if str doesn't contain substr.
func AssertStringContains(t *testing.T, str, substr string) {
	t.Helper()

	if !containsString(str, substr) {
		t.Errorf("String %q does not contain %q", str, substr)
	}
}

func containsString(str, substr string) bool {
	return len(str) >= len(substr) && (str == substr || findSubstring(str, substr))
}

func findSubstring(str, substr string) bool {
	for i := 0; i <= len(str)-len(substr); i++ {
		if str[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
