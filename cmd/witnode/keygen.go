package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/witmesh/witnode/pkg/crypto"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new node signing key",
	RunE:  runKeygen,
}

func init() {
	keygenCmd.Flags().String("out", "witnode.key", "Path to write the new private key to")
	keygenCmd.Flags().Bool("force", false, "Overwrite an existing key file")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	force, _ := cmd.Flags().GetBool("force")

	if !force {
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", out)
		}
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
	}
	if err := os.WriteFile(out, kp.Private.Serialize(), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}

	pkh, err := crypto.PKH(kp.Public.SerializeCompressed())
	if err != nil {
		return fmt.Errorf("derive pkh: %w", err)
	}

	fmt.Printf("wrote new key to %s\n", out)
	fmt.Printf("public key hash: %s\n", pkh.String())
	return nil
}
