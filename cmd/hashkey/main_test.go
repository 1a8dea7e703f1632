package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patientcheck/patientcheck/internal/auth"
)

func TestRun_Plain(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(strings.NewReader("partner-secret\n"), &out, "plain"))

	hash := strings.TrimSpace(out.String())
	ok, err := auth.VerifyToken("partner-secret", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_JSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(strings.NewReader("partner-secret"), &out, "json"))

	var got output
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, auth.HashedCredentialID(got.Hash), got.CredentialID)
	assert.NotContains(t, out.String(), "partner-secret")
}

func TestRun_Errors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(strings.NewReader("\n"), &out, "plain"))
	assert.Error(t, run(strings.NewReader("key"), &out, "yaml"))
}
