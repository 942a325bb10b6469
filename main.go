package main

import (
	"fmt"
	"os"

	"github.com/combust-labs/gitwebhook/cmd/ls"
	"github.com/combust-labs/gitwebhook/cmd/serve"
	"github.com/combust-labs/gitwebhook/cmd/update"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gitwebhook",
	Short: "gitwebhook",
	Long:  `Keeps Git working copies up to date on webhook requests.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(ls.Command)
	rootCmd.AddCommand(serve.Command)
	rootCmd.AddCommand(update.Command)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
