// Command provisioner runs IdentityProvisioner's one-shot operations
// (spec.md §4.9): generating fresh Neo-N3 key material, and creating or
// verifying the account attestation that records a provisioning event.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/neooracle/pricefeed/internal/attestation"
	"github.com/neooracle/pricefeed/internal/identity"
)

func main() {
	var attestationDir string
	var buildCommit, invoker, token string

	root := &cobra.Command{
		Use:   "provisioner",
		Short: "Generate and attest Neo-N3 oracle identities",
	}
	root.PersistentFlags().StringVar(&attestationDir, "attestation-dir", "data/attestation", "attestation storage root")
	root.PersistentFlags().StringVar(&buildCommit, "build-commit", "unknown", "build commit recorded in run metadata")
	root.PersistentFlags().StringVar(&invoker, "invoker", "unknown", "invoker identity recorded in run metadata")
	root.PersistentFlags().StringVar(&token, "token", "", "attestation signing token (sourced from environment in production)")

	var outputPath string
	genCmd := &cobra.Command{
		Use:   "generate-key",
		Short: "Generate a fresh key pair, write it to --output, and attest it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateKey(attestationDir, outputPath, buildCommit, invoker, token)
		},
	}
	genCmd.Flags().StringVar(&outputPath, "output", "", "path to write Address/WIF credentials to (required)")
	_ = genCmd.MarkFlagRequired("output")

	var attestAddress string
	attestCmd := &cobra.Command{
		Use:   "create-account-attestation",
		Short: "Create an account attestation for an already-provisioned address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return createAccountAttestation(attestationDir, buildCommit, invoker, token, attestAddress)
		},
	}
	attestCmd.Flags().StringVar(&attestAddress, "address", "", "address to attest (required)")
	_ = attestCmd.MarkFlagRequired("address")

	var verifyAddress string
	verifyCmd := &cobra.Command{
		Use:   "verify-account-attestation",
		Short: "Verify the stored account attestation's signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyAccount(attestationDir, buildCommit, invoker, token, verifyAddress)
		},
	}
	verifyCmd.Flags().StringVar(&verifyAddress, "address", "", "expected address in the stored attestation (optional cross-check)")

	root.AddCommand(genCmd, attestCmd, verifyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func generateKey(attestationDir, outputPath, buildCommit, invoker, token string) error {
	if outputPath == "" {
		return fmt.Errorf("provisioner: --output is required")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	attestor, err := attestation.New(attestationDir, attestation.Secrets{
		BuildCommit: buildCommit,
		Invoker:     invoker,
		Token:       token,
	}, logger)
	if err != nil {
		return err
	}

	provisioner := identity.New(attestor, logger)
	result, err := provisioner.Generate(outputPath, attestation.RunMetadata{BuildCommit: buildCommit, Invoker: invoker})
	if err != nil {
		return err
	}

	fmt.Printf("Generated identity: %s\nCredentials written to: %s\n", result.Address, outputPath)
	return nil
}

// createAccountAttestation attests an address independently of key generation
// (spec.md §6's distinct "create-account-attestation" exit mode), for
// re-attesting an address whose AccountAttestation file was lost or whose key
// was provisioned outside this tool.
func createAccountAttestation(attestationDir, buildCommit, invoker, token, address string) error {
	if address == "" {
		return fmt.Errorf("provisioner: --address is required")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	attestor, err := attestation.New(attestationDir, attestation.Secrets{
		BuildCommit: buildCommit,
		Invoker:     invoker,
		Token:       token,
	}, logger)
	if err != nil {
		return err
	}

	rec, err := attestor.CreateAccount(address, attestation.RunMetadata{BuildCommit: buildCommit, Invoker: invoker})
	if err != nil {
		return err
	}

	fmt.Printf("Account attestation created for %s at %s\n", rec.Address, rec.CreatedAt.Format(time.RFC3339))
	return nil
}

func verifyAccount(attestationDir, buildCommit, invoker, token, expectedAddress string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	attestor, err := attestation.New(attestationDir, attestation.Secrets{
		BuildCommit: buildCommit,
		Invoker:     invoker,
		Token:       token,
	}, logger)
	if err != nil {
		return err
	}

	path := attestationDir + "/account_attestation.json"
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var rec attestation.AccountAttestation
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if expectedAddress != "" && rec.Address != expectedAddress {
		return fmt.Errorf("stored attestation address %s does not match expected %s", rec.Address, expectedAddress)
	}

	if !attestor.VerifyAccount(rec) {
		return fmt.Errorf("account attestation signature verification failed")
	}

	fmt.Printf("Account attestation for %s verified OK\n", rec.Address)
	return nil
}
