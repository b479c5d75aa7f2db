package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestRun_Producer(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"producer", "articles-service", "--ttl", "24h", "--output", "json"},
		env(map[string]string{"PRODUCER_JWT_SECRET": strings.Repeat("p", 32)}), fixedNow, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	var out TokenOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, "producer", out.Kind)
	assert.Equal(t, "articles-service", out.Subject)
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, fixedNow.Add(24*time.Hour), out.ExpiresAt)
}

func TestRun_Unsubscribe(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"unsubscribe", "6f1c2d3e-4a5b-4c6d-8e7f-9a0b1c2d3e4f", "digest"},
		env(map[string]string{
			"UNSUBSCRIBE_SECRET":   strings.Repeat("u", 32),
			"UNSUBSCRIBE_BASE_URL": "https://notify.example.com/unsubscribe",
		}), fixedNow, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.True(t, strings.HasPrefix(stdout.String(), "https://notify.example.com/unsubscribe?token="))
	assert.Contains(t, stderr.String(), "expires at")
}

func TestRun_Errors(t *testing.T) {
	strong := env(map[string]string{
		"PRODUCER_JWT_SECRET": strings.Repeat("p", 32),
		"UNSUBSCRIBE_SECRET":  strings.Repeat("u", 32),
	})
	tests := []struct {
		name string
		args []string
		env  func(string) string
		code int
	}{
		{"no args", nil, strong, 2},
		{"unknown kind", []string{"admin", "x"}, strong, 2},
		{"producer without name", []string{"producer"}, strong, 2},
		{"weak producer secret", []string{"producer", "svc"}, env(nil), 1},
		{"bad user id", []string{"unsubscribe", "nope", "digest"}, strong, 1},
		{"unknown type", []string{"unsubscribe", "6f1c2d3e-4a5b-4c6d-8e7f-9a0b1c2d3e4f", "comment_added"}, strong, 1},
		{"bad flag", []string{"producer", "svc", "--ttl", "soon"}, strong, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.code, run(tt.args, tt.env, fixedNow, &stdout, &stderr))
			assert.Empty(t, stdout.String())
		})
	}
}
