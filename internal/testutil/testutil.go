// Package testutil holds shared test helpers: platform error assertions,
// temp files, RSA/JWKS fixtures for token tests, and in-memory stores
// that enforce the same uniqueness and one-shot rules as PostgreSQL.
//
// Every helper calls t.Helper() so failures point at the caller.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// RequireErrorCode halts the test unless err is an *sserr.Error carrying
// code.
//
//	_, err := svc.Rotate(ctx, "bogus")
//	testutil.RequireErrorCode(t, err, sserr.CodeRefreshTokenInvalid)
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	ssErr, ok := sserr.AsError(err)
	require.True(t, ok, "expected *sserr.Error, got %T: %v", err, err)
	require.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// AssertErrorCode is the non-fatal form of RequireErrorCode, for table
// tests that should report every row.
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	ssErr, ok := sserr.AsError(err)
	if !assert.True(t, ok, "expected *sserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// TempFile writes content to name inside t.TempDir() with mode 0600.
func TempFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600),
		"failed to write temp file %s", path)
	return path
}

// AssertJSONNotContains marshals v and fails if the output contains
// unexpected. Used to check that secrets and hashes stay out of
// responses.
func AssertJSONNotContains(t testing.TB, v any, unexpected string) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err, "json.Marshal failed")
	assert.NotContains(t, string(data), unexpected,
		"expected JSON to NOT contain %q, got: %s", unexpected, string(data))
}
