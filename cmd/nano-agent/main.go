package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adyngom/nano-agent/internal/cli"
	"github.com/adyngom/nano-agent/internal/http"
	"github.com/adyngom/nano-agent/internal/log"
	internal_storage "github.com/adyngom/nano-agent/internal/storage"
)

var rootCmd = &cobra.Command{Use: "nano-agent"}

func main() {
	cli.SetupCLI(rootCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only view of the checkpoint store over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			port, _ := cmd.Flags().GetString("port")
			dbConnStr, _ := cmd.Flags().GetString("db")
			fileRoot, _ := cmd.Flags().GetString("store")

			store, err := internal_storage.InitStore(dbConnStr, fileRoot)
			if err != nil {
				log.GetLogger().Errorf("Failed to initialize store: %v", err)
				os.Exit(1)
			}
			defer store.Close()

			if err := http.StartServer(port, store); err != nil {
				log.GetLogger().Errorf("Server failed: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "Listen port")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
