package identity

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/neooracle/pricefeed/internal/attestation"
)

func TestGenerate_WritesCredentialsWithRestrictivePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permission bits not meaningful on windows")
	}

	dir := t.TempDir()
	attestor, err := attestation.New(filepath.Join(dir, "attestations"), attestation.Secrets{}, zerolog.Nop())
	require.NoError(t, err)

	p := New(attestor, zerolog.Nop())
	outputPath := filepath.Join(dir, "keys", "tee.txt")

	result, err := p.Generate(outputPath, attestation.RunMetadata{BuildCommit: "abc123", Invoker: "test"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Address)

	info, err := os.Stat(outputPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Contains(t, string(content), "Address: ")
	require.Contains(t, string(content), "WIF: ")
}

func TestGenerate_CreatesAccountAttestation(t *testing.T) {
	dir := t.TempDir()
	attestor, err := attestation.New(dir, attestation.Secrets{}, zerolog.Nop())
	require.NoError(t, err)

	p := New(attestor, zerolog.Nop())
	_, err = p.Generate(filepath.Join(dir, "keys", "master.txt"), attestation.RunMetadata{})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "account_attestation.json"))
	require.NoError(t, err)
}
