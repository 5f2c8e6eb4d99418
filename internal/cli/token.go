package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/slotwatch/slotwatch/internal/auth"
)

func newTokenCommand(o *options) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API access token",
		Long: `token signs an access token with api.jwt_signing_key. The token is written
to stdout and its expiry to stderr.`,
		Example: `  slotwatch token --subject nightly-job
  slotwatch token --subject dashboard --scope scans:read --ttl 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.API.TokenTTL
			}

			svc, err := auth.NewJWTService(auth.JWTConfig{
				SigningKey: cfg.API.JWTSigningKey,
				Issuer:     cfg.API.JWTIssuer,
				Audience:   cfg.API.JWTAudience,
				TokenTTL:   ttl,
			})
			if err != nil {
				return err
			}

			token, expiresAt, err := svc.GenerateAccessToken(subject, scopes...)
			if err != nil {
				return err
			}

			if _, err := fmt.Fprintln(cmd.OutOrStdout(), token); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "who the token is for")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "granted scopes (default: "+auth.ScopeScansRead+","+auth.ScopeScansWrite+")")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: api.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
