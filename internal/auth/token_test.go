package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateToken_WhenNoFile_CreatesNewToken(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested")

	token, err := LoadOrCreateToken(dir)
	require.NoError(t, err)

	assert.Len(t, token, 64, "token should be 64 hex chars (32 bytes)")
	assertHexString(t, token)

	info, err := os.Stat(filepath.Join(dir, tokenFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestLoadOrCreateToken_WhenFileExists_ReturnsTrimmedExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	existing := "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	require.NoError(t, os.WriteFile(filepath.Join(dir, tokenFileName), []byte(existing+"\n"), 0600))

	token, err := LoadOrCreateToken(dir)
	require.NoError(t, err)
	assert.Equal(t, existing, token)
}

func TestLoadOrCreateToken_CalledTwice_ReturnsSameToken(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first, err := LoadOrCreateToken(dir)
	require.NoError(t, err)
	second, err := LoadOrCreateToken(dir)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLoadOrCreateToken_WhenBlankFile_GeneratesNew(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tokenFileName), []byte("  \n"), 0600))

	token, err := LoadOrCreateToken(dir)
	require.NoError(t, err)
	assert.Len(t, token, 64)
}

func TestRotateToken_GeneratesDifferentToken(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	original, err := LoadOrCreateToken(dir)
	require.NoError(t, err)
	rotated, err := RotateToken(dir)
	require.NoError(t, err)

	assert.NotEqual(t, original, rotated)
	assertHexString(t, rotated)

	reloaded, err := LoadOrCreateToken(dir)
	require.NoError(t, err)
	assert.Equal(t, rotated, reloaded)
}

func TestHashToken_IsHexSHA256(t *testing.T) {
	t.Parallel()

	// sha256("secret")
	assert.Equal(t, "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b", HashToken("secret"))
}

func TestTokenValidator_FromHash(t *testing.T) {
	t.Parallel()

	v, err := NewTokenValidator(HashToken("letmein"))
	require.NoError(t, err)

	assert.True(t, v.Validate("letmein"))
	assert.False(t, v.Validate("letmeout"))
	assert.False(t, v.Validate(""))
}

func TestTokenValidator_ForToken(t *testing.T) {
	t.Parallel()

	v := NewTokenValidatorForToken("abc")
	assert.True(t, v.Validate("abc"))
	assert.False(t, v.Validate("abcd"))
}

func TestNewTokenValidator_RejectsBadHash(t *testing.T) {
	t.Parallel()

	_, err := NewTokenValidator("not-hex")
	assert.Error(t, err)

	_, err = NewTokenValidator("abcd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sha256")
}

func assertHexString(t *testing.T, s string) {
	t.Helper()
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Errorf("non-hex character %q in string %q", c, s)
			return
		}
	}
}
