package main

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/carequeue/internal/scorer/claude"
	"github.com/linnemanlabs/carequeue/internal/scorer/openai"
	"github.com/linnemanlabs/carequeue/internal/triage"
)

type classification struct {
	Text     string `yaml:"text"`
	Priority string `yaml:"priority"`
	Source   string `yaml:"source"`
}

func newClassifyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <symptoms>...",
		Short: "Classify symptom text",
		Long: `Classify each argument as Emergency, Urgent or Routine.

With --scorer, text the vocabulary does not match is also offered to the
secondary scorer, which can only raise the priority.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cls, err := classifierFromConfig(v)
			if err != nil {
				return err
			}

			out := make([]classification, 0, len(args))
			for _, text := range args {
				d := cls.Classify(cmd.Context(), text)
				out = append(out, classification{Text: text, Priority: d.Priority.String(), Source: string(d.Source)})
			}

			w := cmd.OutOrStdout()
			if v.GetString("output") == "yaml" {
				enc := yaml.NewEncoder(w)
				defer func() { _ = enc.Close() }()
				return enc.Encode(out)
			}
			for _, c := range out {
				fmt.Fprintf(w, "%-9s  %-6s  %s\n", c.Priority, c.Source, c.Text)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringP("output", "o", "text", "output format (text, yaml)")
	f.String("scorer", "none", "secondary scorer (none, claude, openai)")
	f.String("scorer-api-key", "", "API key for the secondary scorer")
	f.String("scorer-model", "", "model for the secondary scorer")
	f.Duration("scorer-timeout", triage.DefaultScorerTimeout, "per-call scorer timeout")
	for _, name := range []string{"output", "scorer", "scorer-api-key", "scorer-model", "scorer-timeout"} {
		_ = v.BindPFlag(name, f.Lookup(name))
	}
	return cmd
}

func classifierFromConfig(v *viper.Viper) (*triage.Classifier, error) {
	vocab, err := triage.LoadVocabulary(v.GetString("vocabulary-file"))
	if err != nil {
		return nil, err
	}

	var opts []triage.Option
	key, model := v.GetString("scorer-api-key"), v.GetString("scorer-model")
	switch name := strings.ToLower(v.GetString("scorer")); name {
	case "", "none":
	case "claude", "openai":
		if key == "" {
			return nil, fmt.Errorf("scorer %s needs --scorer-api-key", name)
		}
		var s triage.Scorer = claude.New(key, model, "")
		if name == "openai" {
			s = openai.New(key, model, "")
		}
		opts = append(opts, triage.WithScorer(s))
	default:
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
	if d := v.GetDuration("scorer-timeout"); d > 0 {
		opts = append(opts, triage.WithScorerTimeout(d))
	}
	return triage.NewClassifier(vocab, log.Nop(), opts...), nil
}
