package cmd

import (
	"fmt"
	"os"

	"github.com/psantana5/callguard/pkg/auth"
	"github.com/spf13/cobra"
)

// keygenCmd represents the keygen command
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an API key for serve",
	Long: `Generate a random bearer key for the serve API and the bcrypt hash to put
under server.api_key_hash (or CALLGUARD_SERVER_API_KEY_HASH).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := auth.GenerateKey()
		if err != nil {
			return err
		}
		hash, err := auth.HashKey(key)
		if err != nil {
			return err
		}
		if IsJSONOutput() {
			return writeJSON(os.Stdout, map[string]string{"key": key, "hash": hash})
		}
		fmt.Printf("key:  %s\nhash: %s\n", key, hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
