package cmd

import (
	"log/slog"
	"os"

	"github.com/gematik/zero-op/server"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	runCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	viper.BindPFlag("addr", runCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the authorization server",
	Run: func(cmd *cobra.Command, args []string) {
		configFile := expandHome(viper.GetString("config_file"))
		if configFile == "" {
			cobra.CheckErr("config file is required. Use --config-file/-f flag or environment variable")
		}

		op, err := server.NewFromConfigFile(configFile)
		if err != nil {
			slog.Error("Failed to create authorization server", "error", err)
			os.Exit(1)
		}

		e := echo.New()
		e.Use(middleware.Recover())

		op.MountRoutes(e.Group(""))

		addr := viper.GetString("addr")
		slog.Info("starting authorization server", "issuer", op.Metadata.Issuer, "addr", addr)
		e.Logger.Fatal(e.Start(addr))
	},
}
