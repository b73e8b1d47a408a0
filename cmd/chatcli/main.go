// Command chatcli is a terminal client for the realtime chatroom server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "chatcli",
	Short: "Realtime chatroom CLI",
	Long:  "Command-line client for the realtime chatroom server.\nCreate rooms, chat, manage invites and watch rooms live.",
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
