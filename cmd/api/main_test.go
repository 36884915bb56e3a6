package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/turnstile/pkg/secrets"
)

const testMasterKey = "master-key-for-tests-0123456789ab"

func TestEncryptSecret_RoundTripsThroughDecrypt(t *testing.T) {
	var out bytes.Buffer

	err := encryptSecret(strings.NewReader("whsec_abc123\n"), &out, testMasterKey)
	require.NoError(t, err)

	plain, err := secrets.Decrypt(testMasterKey, strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "whsec_abc123", plain)
}

func TestEncryptSecret_RejectsEmptyInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no input", ""},
		{"blank line", "   \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := encryptSecret(strings.NewReader(tt.input), &out, testMasterKey)
			assert.Error(t, err)
			assert.Empty(t, out.String())
		})
	}
}

func TestEncryptSecret_RequiresMasterKey(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, encryptSecret(strings.NewReader("whsec_abc123\n"), &out, ""))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}
