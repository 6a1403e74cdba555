// Command witnessctl is a thin JSON-RPC client for witnode: the
// minimal boundary signer and control CLI this spec keeps in scope,
// as opposed to a full wallet UI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "witnessctl",
	Short: "witnessctl - control and inspect a running witnode over JSON-RPC",
	Long: `witnessctl talks to a witnode's JSON-RPC HTTP transport to
inspect chain state (inventory, blocks, the block chain, unspent
outputs), and signs a hex digest with a locally-held key. It is not a wallet: it has no
key-derivation or balance-tracking flows, only the minimal signer a
command-line operator needs to talk to a node.`,
}

func init() {
	rootCmd.PersistentFlags().String("addr", "http://127.0.0.1:21339", "witnode JSON-RPC HTTP address")
	rootCmd.PersistentFlags().Duration("timeout", 0, "request timeout (0 = no timeout)")

	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(getBlockCmd)
	rootCmd.AddCommand(getBlockChainCmd)
	rootCmd.AddCommand(getOutputCmd)
	rootCmd.AddCommand(signCmd)
}
