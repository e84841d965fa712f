package adapter_test

import (
	"os"
	"testing"
)

func getEnvOrSkip(t *testing.T, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skip(key + " is not set")
	}
	return v
}
