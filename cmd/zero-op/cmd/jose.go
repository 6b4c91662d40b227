package cmd

import (
	"encoding/json"
	"io"
	"os"

	"github.com/gematik/zero-op/jwkutil"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(joseCmd)
	joseCmd.AddCommand(joseGenerateJwkCmd)
	joseCmd.AddCommand(josePublicJwkCmd)
	joseCmd.AddCommand(josePublicJwkSetCmd)
}

var joseCmd = &cobra.Command{
	Use:   "jose",
	Short: "Various JOSE utilities",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var joseGenerateJwkCmd = &cobra.Command{
	Use:   "generate-jwk",
	Short: "Generate a JWK",
	Run: func(cmd *cobra.Command, args []string) {
		randomJwk, err := jwkutil.GenerateRandomJwk()
		cobra.CheckErr(err)
		cobra.CheckErr(json.NewEncoder(os.Stdout).Encode(randomJwk))
	},
}

var josePublicJwkCmd = &cobra.Command{
	Use:   "public-jwk",
	Short: "Reads the JWK from stdin and prints the public JWK to stdout",
	Run: func(cmd *cobra.Command, args []string) {
		data, err := io.ReadAll(os.Stdin)
		cobra.CheckErr(err)
		key, err := jwk.ParseKey(data)
		cobra.CheckErr(err)
		publicKey, err := key.PublicKey()
		cobra.CheckErr(err)
		cobra.CheckErr(json.NewEncoder(os.Stdout).Encode(publicKey))
	},
}

var josePublicJwkSetCmd = &cobra.Command{
	Use:   "public-jwks",
	Short: "Reads the JWK Set from stdin and prints the public JWK Set to stdout",
	Run: func(cmd *cobra.Command, args []string) {
		data, err := io.ReadAll(os.Stdin)
		cobra.CheckErr(err)
		set, err := jwk.Parse(data)
		cobra.CheckErr(err)
		publicSet, err := jwkutil.PublicJwkSet(set)
		cobra.CheckErr(err)
		cobra.CheckErr(json.NewEncoder(os.Stdout).Encode(publicSet))
	},
}
