// Package identity implements IdentityProvisioner (spec.md §4.9): one-shot Neo
// account key generation, WIF export, and account-attestation creation.
package identity

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joeqian10/neo3-gogogo/crypto"
	"github.com/joeqian10/neo3-gogogo/wallet"
	"github.com/rs/zerolog"

	"github.com/neooracle/pricefeed/internal/attestation"
	"github.com/neooracle/pricefeed/internal/oraclerr"
)

// Provisioner generates fresh Neo-N3 key material and records its creation.
type Provisioner struct {
	attest *attestation.Attestor
	log    zerolog.Logger
}

// New builds a Provisioner backed by attestor for the account-attestation step.
func New(attestor *attestation.Attestor, logger zerolog.Logger) *Provisioner {
	return &Provisioner{attest: attestor, log: logger.With().Str("component", "identity").Logger()}
}

// Result carries the generated account's public address; the WIF is written to
// disk only, never returned, never logged (spec.md §4.9: "Never emits the WIF to
// stdout/logs").
type Result struct {
	Address string
}

// Generate creates a 256-bit key via a CSPRNG, derives the Neo address, writes
// "Address: <addr>\nWIF: <wif>" to outputPath with POSIX 0600/0700 permissions,
// and records an AccountAttestation.
func (p *Provisioner) Generate(outputPath string, meta attestation.RunMetadata) (Result, error) {
	keyPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return Result{}, fmt.Errorf("%w: generate key pair: %v", oraclerr.ErrConfig, err)
	}

	account, err := wallet.NewAccountFromPrivateKey(keyPair.PrivateKey)
	if err != nil {
		return Result{}, fmt.Errorf("%w: derive account: %v", oraclerr.ErrConfig, err)
	}
	wif, err := keyPair.ExportWIF()
	if err != nil {
		return Result{}, fmt.Errorf("%w: export WIF: %v", oraclerr.ErrConfig, err)
	}

	if err := writeCredentials(outputPath, account.Address, wif); err != nil {
		return Result{}, err
	}
	p.log.Info().Str("address", account.Address).Str("path", outputPath).Msg("identity provisioned")

	if _, err := p.attest.CreateAccount(account.Address, meta); err != nil {
		return Result{}, fmt.Errorf("%w: %v", oraclerr.ErrAttestationFailure, err)
	}

	return Result{Address: account.Address}, nil
}

// writeCredentials writes the address/WIF pair to outputPath, creating its parent
// directory with mode 0700 and the file itself with mode 0600 (spec.md §4.9).
func writeCredentials(outputPath, address, wif string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create output directory: %v", oraclerr.ErrConfig, err)
	}

	content := fmt.Sprintf("Address: %s\nWIF: %s\n", address, wif)
	if err := os.WriteFile(outputPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("%w: write credentials file: %v", oraclerr.ErrConfig, err)
	}
	// os.WriteFile respects the umask; reassert 0600 explicitly since credentials
	// must never be group/world readable regardless of process umask.
	if err := os.Chmod(outputPath, 0o600); err != nil {
		return fmt.Errorf("%w: chmod credentials file: %v", oraclerr.ErrConfig, err)
	}
	return nil
}
