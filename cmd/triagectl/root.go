package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd builds the command tree around v so tests can use a private viper.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "triagectl",
		Short: "Inspect and exercise the carequeue triage classifier",
		Long: `triagectl runs the same tiered classifier as the carequeue server.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (TRIAGECTL_*)
3. Config file (--config)
4. Defaults`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, v, cfgFile)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "print which config file is used")
	_ = v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))
	root.PersistentFlags().String("vocabulary-file", "", "YAML vocabulary file (empty = built-in)")
	_ = v.BindPFlag("vocabulary-file", root.PersistentFlags().Lookup("vocabulary-file"))

	root.AddCommand(
		newClassifyCmd(v),
		newVocabCmd(v),
		newTokenCmd(v),
	)
	return root
}

func initConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("TRIAGECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	if v.GetBool("verbose") {
		fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", v.ConfigFileUsed())
	}
	return nil
}
