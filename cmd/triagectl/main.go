// Triagectl is an operator tool for the triage classifier: it classifies
// symptom text offline, prints the effective vocabulary and mints staff tokens.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
