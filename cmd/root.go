package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-id",
	Short: "Face enrollment, identification and verification against a local gallery",
	Long: `face-id enrolls identities from one or more photos, identifies unknown faces
against the enrolled gallery and verifies claimed identities.

Every photo goes through detection, a quality gate, optional enhancement
(super-resolution and restoration) and embedding. Signatures are kept in a
persisted vector gallery; PostgreSQL is optional and, when DATABASE_URL is set,
stores the attempt log and the signature archive used by "gallery rebuild".`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (overrides DEBUG)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
