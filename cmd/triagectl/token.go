package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/linnemanlabs/carequeue/internal/authmw"
)

func newTokenCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a staff JWT for the carequeue API",
		Long: `Mint an HS256 token accepted by a server started with -jwt-secret.
The secret is read from --jwt-secret or TRIAGECTL_JWT_SECRET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := v.GetString("jwt-secret")
			if secret == "" {
				return errors.New("jwt secret is required (--jwt-secret or TRIAGECTL_JWT_SECRET)")
			}
			tok, err := authmw.IssueToken([]byte(secret), v.GetString("subject"), v.GetString("role"), v.GetDuration("ttl"), time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	f := cmd.Flags()
	f.String("jwt-secret", "", "HS256 signing secret")
	f.String("subject", "", "staff member the token identifies")
	f.String("role", "", "optional role claim")
	f.Duration("ttl", 12*time.Hour, "token lifetime")
	for _, name := range []string{"jwt-secret", "subject", "role", "ttl"} {
		_ = v.BindPFlag(name, f.Lookup(name))
	}
	return cmd
}
