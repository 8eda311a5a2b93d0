package cmd

import (
	"log"

	"comproom/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the session relay server",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting comproom relay server...")
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
