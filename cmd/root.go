package cmd

import (
	"fmt"
	"log"
	"os"

	"TaskHub/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskhub",
	Short: "TaskHub is a task management service with multi-channel login.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting TaskHub server...")
		// server.Start now handles its own port and logging for startup.
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
