package main

import (
	"github.com/spf13/cobra"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Show the node's chain tip, mempool, and peer/session counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := call(cmd, "inventory", nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var getBlockCmd = &cobra.Command{
	Use:   "get-block <hash>",
	Short: "Fetch a consolidated block by hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := call(cmd, "getBlock", struct {
			Hash string `json:"hash"`
		}{Hash: args[0]}, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var getBlockChainCmd = &cobra.Command{
	Use:   "get-blockchain",
	Short: "List consolidated block hashes by epoch range",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetUint32("from")
		to, _ := cmd.Flags().GetUint32("to")
		var out any
		if err := call(cmd, "getBlockChain", struct {
			From uint32 `json:"from"`
			To   uint32 `json:"to"`
		}{From: from, To: to}, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	getBlockChainCmd.Flags().Uint32("from", 0, "first epoch (inclusive)")
	getBlockChainCmd.Flags().Uint32("to", 0, "last epoch (inclusive, 0 = chain tip)")
}

var getOutputCmd = &cobra.Command{
	Use:   "get-output <tx-hash>:<index>",
	Short: "Look up an unspent output by pointer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := call(cmd, "getOutput", struct {
			Pointer string `json:"pointer"`
		}{Pointer: args[0]}, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}
