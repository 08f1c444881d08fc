package main

import (
	"github.com/spf13/cobra"

	"github.com/knoguchi/tender/internal/auth"
)

var tokenName string

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue a bearer token for the API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jwtConfig := auth.DefaultJWTConfig(cfg.JWTSecret)
		jwtConfig.Expiry = cfg.JWTExpiry

		token, err := auth.NewJWTManager(jwtConfig).GenerateToken(args[0], tokenName)
		if err != nil {
			return err
		}
		cmd.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name recorded as the uploader")
	rootCmd.AddCommand(tokenCmd)
}
