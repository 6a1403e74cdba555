package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/witmesh/witnode/pkg/crypto"
)

var signCmd = &cobra.Command{
	Use:   "sign <digest-hex>",
	Short: "Sign a digest with a locally-held key file",
	Long: `sign loads the private key written by "witnode keygen" and produces
a detached signature over a hex-encoded digest, printing the signature
and the compressed public key an input's PublicKey field expects. This
is the full extent of witnessctl's signing surface: it has no
key-derivation hierarchy, no balance tracking, and no transaction
builder, since the node's own JSON-RPC methods accept fully-formed,
already-signed transactions.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyPath, _ := cmd.Flags().GetString("key")

		digest, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("malformed digest: %w", err)
		}

		raw, err := os.ReadFile(keyPath)
		if err != nil {
			return fmt.Errorf("read key file: %w", err)
		}
		kp, err := crypto.KeyPairFromBytes(raw)
		if err != nil {
			return fmt.Errorf("load key: %w", err)
		}

		sig := kp.Sign(digest)
		fmt.Printf("signature: %s\n", hex.EncodeToString(sig))
		fmt.Printf("public_key: %s\n", hex.EncodeToString(kp.Public.SerializeCompressed()))
		return nil
	},
}

func init() {
	signCmd.Flags().String("key", "witnode.key", "Path to a private key file written by \"witnode keygen\"")
}
