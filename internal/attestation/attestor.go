// Package attestation produces and verifies the tamper-evident receipts described
// in spec.md §4.7: one AccountAttestation per identity provisioning event, one
// BatchAttestation per published sub-batch. Both share one signing scheme.
package attestation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/neooracle/pricefeed/internal/oraclerr"
)

// RunMetadata identifies the build/invoker context embedded in every attestation,
// named but not otherwise specified by spec.md §3.
type RunMetadata struct {
	BuildCommit string `json:"buildCommit"`
	Invoker     string `json:"invoker"`
}

// Secrets is the run-secret triplet concatenated into the signature input
// (spec.md §4.7): build commit, invoker identity, token. Sourced once from the
// runtime environment at process start and never logged.
type Secrets struct {
	BuildCommit string
	Invoker     string
	Token       string
}

func (s Secrets) joined() string {
	return strings.Join([]string{s.BuildCommit, s.Invoker, s.Token}, "|")
}

// AccountAttestation is produced once per key-provisioning run (spec.md §4.7).
type AccountAttestation struct {
	Address     string      `json:"address"`
	CreatedAt   time.Time   `json:"createdAt"`
	RunMetadata RunMetadata `json:"runMetadata"`
	Type        string      `json:"type"`
	Signature   string      `json:"signature"`
}

// PriceSummary is one symbol's entry in a BatchAttestation.
type PriceSummary struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Confidence int             `json:"confidence"`
}

// BatchAttestation is produced once per published sub-batch (spec.md §4.7).
type BatchAttestation struct {
	BatchID         uuid.UUID      `json:"batchId"`
	TxHash          string         `json:"txHash"`
	Count           int            `json:"count"`
	PriceSummaries  []PriceSummary `json:"priceSummaries"`
	Timestamp       time.Time      `json:"timestamp"`
	RunMetadata     RunMetadata    `json:"runMetadata"`
	Type            string         `json:"type"`
	Signature       string         `json:"signature"`
}

// Attestor owns the filesystem directories holding attestation receipts, nothing
// else (spec.md §3 ownership rules).
type Attestor struct {
	baseDir string
	secrets Secrets
	log     zerolog.Logger
}

// New builds an Attestor rooted at baseDir. baseDir and baseDir/price_feed are
// created with 0700 permissions if absent.
func New(baseDir string, secrets Secrets, logger zerolog.Logger) (*Attestor, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "price_feed"), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create attestation dirs: %v", oraclerr.ErrAttestationFailure, err)
	}
	return &Attestor{baseDir: baseDir, secrets: secrets, log: logger.With().Str("component", "attestor").Logger()}, nil
}

// CreateAccount signs and writes an AccountAttestation to
// <base>/account_attestation.json. Convenience wrapper over the richer form that
// fills createdAt from the current time.
func (a *Attestor) CreateAccount(address string, meta RunMetadata) (AccountAttestation, error) {
	return a.CreateAccountAt(address, meta, time.Now().UTC())
}

// CreateAccountAt is the richer form (spec.md §9: collapse the source's minimal
// and richer createAccount overloads into one operation plus a convenience
// wrapper).
func (a *Attestor) CreateAccountAt(address string, meta RunMetadata, createdAt time.Time) (AccountAttestation, error) {
	rec := AccountAttestation{
		Address:     address,
		CreatedAt:   createdAt,
		RunMetadata: meta,
		Type:        "account_generation",
	}
	sig, err := a.sign(rec)
	if err != nil {
		return AccountAttestation{}, err
	}
	rec.Signature = sig

	path := filepath.Join(a.baseDir, "account_attestation.json")
	if err := writeJSON(path, rec); err != nil {
		return AccountAttestation{}, fmt.Errorf("%w: %v", oraclerr.ErrAttestationFailure, err)
	}
	return rec, nil
}

// CreateBatch signs and writes a BatchAttestation to
// <base>/price_feed/attestation_<yyyyMMdd_HHmmss>_<batchId>.json.
func (a *Attestor) CreateBatch(batchID uuid.UUID, txHash string, summaries []PriceSummary, meta RunMetadata) (BatchAttestation, error) {
	now := time.Now().UTC()
	rec := BatchAttestation{
		BatchID:        batchID,
		TxHash:         txHash,
		Count:          len(summaries),
		PriceSummaries: summaries,
		Timestamp:      now,
		RunMetadata:    meta,
		Type:           "price_feed_update",
	}
	sig, err := a.sign(rec)
	if err != nil {
		return BatchAttestation{}, err
	}
	rec.Signature = sig

	fileName := fmt.Sprintf("attestation_%s_%s.json", now.Format("20060102_150405"), batchID.String())
	path := filepath.Join(a.baseDir, "price_feed", fileName)
	if err := writeJSON(path, rec); err != nil {
		return BatchAttestation{}, fmt.Errorf("%w: %v", oraclerr.ErrAttestationFailure, err)
	}
	return rec, nil
}

// VerifyAccount recomputes rec's signature from its body and the Attestor's
// current environment secrets and compares.
func (a *Attestor) VerifyAccount(rec AccountAttestation) bool {
	want := rec.Signature
	rec.Signature = ""
	got, err := a.sign(rec)
	return err == nil && got == want
}

// VerifyBatch recomputes rec's signature and compares.
func (a *Attestor) VerifyBatch(rec BatchAttestation) bool {
	want := rec.Signature
	rec.Signature = ""
	got, err := a.sign(rec)
	return err == nil && got == want
}

// PruneOlderThan deletes price_feed attestation files whose embedded timestamp
// predates now-days. Per-file failures are logged and do not halt pruning
// (spec.md §4.7).
func (a *Attestor) PruneOlderThan(days int, now time.Time) int {
	cutoff := now.AddDate(0, 0, -days)
	dir := filepath.Join(a.baseDir, "price_feed")

	entries, err := os.ReadDir(dir)
	if err != nil {
		a.log.Warn().Err(err).Msg("prune: cannot list attestation directory")
		return 0
	}

	pruned := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseAttestationTimestamp(entry.Name())
		if !ok || ts.After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			a.log.Warn().Err(err).Str("file", entry.Name()).Msg("prune: failed to remove file")
			continue
		}
		pruned++
	}
	return pruned
}

// parseAttestationTimestamp extracts the yyyyMMdd_HHmmss segment from
// attestation_<ts>_<batchId>.json.
func parseAttestationTimestamp(name string) (time.Time, bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "attestation_"), ".json")
	parts := strings.SplitN(trimmed, "_", 3)
	if len(parts) < 2 {
		return time.Time{}, false
	}
	ts, err := time.Parse("20060102_150405", parts[0]+"_"+parts[1])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// sign serializes rec (with its Signature field already blank) to canonical JSON,
// concatenates the run-secret triplet, and SHA-256 hashes the result, hex-encoded
// lowercase (spec.md §4.7). crypto/sha256 is used directly here: the spec defines
// the exact hash primitive, leaving no third-party signing library to ground this
// on (see DESIGN.md).
func (a *Attestor) sign(rec interface{}) (string, error) {
	canonical, err := canonicalJSON(rec)
	if err != nil {
		return "", fmt.Errorf("%w: canonicalize record: %v", oraclerr.ErrAttestationFailure, err)
	}
	h := sha256.Sum256([]byte(canonical + "|" + a.secrets.joined()))
	return hex.EncodeToString(h[:]), nil
}

// canonicalJSON re-marshals rec through a map so keys are sorted, giving a
// deterministic byte sequence regardless of struct field order.
func canonicalJSON(rec interface{}) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(generic))
	for k := range generic {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(generic[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String(), nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
