package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "collecta/internal/jwt_token"
	id "collecta/pkg/domain"
)

var (
	tokenActor string
	tokenName  string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token for an actor",
	Long: `Mint an HS256 access token signed with auth.jwt_secret. Intended for
development and for service accounts; the system actor cannot be minted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := id.ParseActorID(tokenActor)
		if err != nil {
			return err
		}
		svc := jwttoken.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
		token, err := svc.GenerateAccessToken(actor, tokenName, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenActor, "actor", "", "actor UUID (required)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name carried in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("actor")
}
