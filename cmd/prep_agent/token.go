package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/config"
	"github.com/jonathan/interview-prep/internal/server"
	"github.com/spf13/cobra"
)

var tokenUser string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token signed with JWT_SECRET",
	Long: `Issue a bearer token for a user id. The server must run with the same
JWT_SECRET. Without --user a new id is generated.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		auth, err := config.NewAuth()
		if err != nil {
			return err
		}
		jwtCfg, err := auth.JWT()
		if err != nil {
			return err
		}
		if jwtCfg == nil {
			return fmt.Errorf("JWT_SECRET is not set")
		}

		userID := uuid.New()
		if tokenUser != "" {
			if userID, err = uuid.Parse(tokenUser); err != nil {
				return fmt.Errorf("invalid user id %q: %w", tokenUser, err)
			}
		}
		token, err := server.NewJWTService(jwtCfg).GenerateToken(userID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "user %s\n", userID)
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id to embed in the token")
	rootCmd.AddCommand(tokenCmd)
}
