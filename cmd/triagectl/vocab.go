package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/carequeue/internal/triage"
)

func newVocabCmd(v *viper.Viper) *cobra.Command {
	vocab := &cobra.Command{
		Use:   "vocab",
		Short: "Work with the classifier vocabulary",
	}
	vocab.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective vocabulary as YAML",
		Long: `Print the phrase sets the classifier would use. The output is a valid
--vocabulary-file and can be edited and fed back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vb, err := triage.LoadVocabulary(v.GetString("vocabulary-file"))
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(vb); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return vocab
}
