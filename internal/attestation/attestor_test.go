package attestation

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testSecrets() Secrets {
	return Secrets{BuildCommit: "abc123", Invoker: "test-invoker", Token: "test-token"}
}

func TestCreateAccount_WritesFileAndVerifies(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir, testSecrets(), zerolog.Nop())
	require.NoError(t, err)

	rec, err := a.CreateAccountAt("NX8GreRFGFK5wpGMWetpX93HmtrezGogzk", RunMetadata{BuildCommit: "abc123", Invoker: "test"}, time.Now().UTC())
	require.NoError(t, err)
	require.NotEmpty(t, rec.Signature)
	require.True(t, a.VerifyAccount(rec))
}

func TestVerifyAccount_RejectsTamperedRecord(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir, testSecrets(), zerolog.Nop())
	require.NoError(t, err)

	rec, err := a.CreateAccount("NX8GreRFGFK5wpGMWetpX93HmtrezGogzk", RunMetadata{BuildCommit: "abc123", Invoker: "test"})
	require.NoError(t, err)

	rec.Address = "NdifferentAddressXXXXXXXXXXXXXXXXX"
	require.False(t, a.VerifyAccount(rec))
}

func TestVerifyBatch_RejectsWrongSecrets(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir, testSecrets(), zerolog.Nop())
	require.NoError(t, err)

	summaries := []PriceSummary{{Symbol: "BTCUSDT", Price: decimal.RequireFromString("50000"), Confidence: 100}}
	rec, err := a.CreateBatch(uuid.New(), "0xdeadbeef", summaries, RunMetadata{BuildCommit: "abc123", Invoker: "test"})
	require.NoError(t, err)
	require.True(t, a.VerifyBatch(rec))

	other, err := New(dir, Secrets{BuildCommit: "other", Invoker: "other", Token: "other"}, zerolog.Nop())
	require.NoError(t, err)
	require.False(t, other.VerifyBatch(rec))
}

func TestCreateBatch_CountMatchesSummaries(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir, testSecrets(), zerolog.Nop())
	require.NoError(t, err)

	summaries := []PriceSummary{
		{Symbol: "BTCUSDT", Price: decimal.RequireFromString("50000"), Confidence: 100},
		{Symbol: "ETHUSDT", Price: decimal.RequireFromString("4000"), Confidence: 80},
	}
	rec, err := a.CreateBatch(uuid.New(), "0xdeadbeef", summaries, RunMetadata{})
	require.NoError(t, err)
	require.Equal(t, 2, rec.Count)
	require.Equal(t, "price_feed_update", rec.Type)
}

func TestPruneOlderThan_RemovesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir, testSecrets(), zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	oldBatch := uuid.New()
	freshBatch := uuid.New()

	old, err := a.CreateBatch(oldBatch, "0xold", nil, RunMetadata{})
	require.NoError(t, err)
	_ = old
	fresh, err := a.CreateBatch(freshBatch, "0xfresh", nil, RunMetadata{})
	require.NoError(t, err)
	_ = fresh

	// Rename the "old" file to carry a stale timestamp so pruning has something to find.
	renameAttestationFile(t, dir, oldBatch, now.AddDate(0, 0, -10))

	pruned := a.PruneOlderThan(7, now)
	require.Equal(t, 1, pruned)
}

// renameAttestationFile rewrites the on-disk filename for batchID's attestation to
// carry the given timestamp, simulating an aged file without sleeping in tests.
func renameAttestationFile(t *testing.T, baseDir string, batchID uuid.UUID, ts time.Time) {
	t.Helper()
	dir := baseDir + "/price_feed"
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		if strings.Contains(entry.Name(), batchID.String()) {
			newName := dir + "/attestation_" + ts.Format("20060102_150405") + "_" + batchID.String() + ".json"
			require.NoError(t, os.Rename(dir+"/"+entry.Name(), newName))
		}
	}
}
