package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/reelmatch/match-cli/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and validate category attribute schemas",
}

// -- schema list --

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered category schemas",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("local"); err != nil {
			return err
		}
		reg, err := initRegistry()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tATTRIBUTES\tDEAL_BREAKERS\tMIN_SCORE")
		for _, name := range reg.Names() {
			cs, err := reg.Lookup(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%.0f\n",
				cs.Name, len(cs.Attributes), len(cs.DealBreakers()), cs.MinMatchScore)
		}
		return w.Flush()
	},
}

// -- schema show --

var schemaShowCmd = &cobra.Command{
	Use:   "show <category>",
	Short: "Show one category schema as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("local"); err != nil {
			return err
		}
		reg, err := initRegistry()
		if err != nil {
			return err
		}
		cs, err := reg.Lookup(args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cs)
	},
}

// -- schema validate --

var schemaValidateCmd = &cobra.Command{
	Use:   "validate <file.yaml>",
	Short: "Validate a schema YAML file without registering it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := schema.NewRegistry()
		if err != nil {
			return err
		}
		if err := reg.LoadFile(args[0]); err != nil {
			return eris.Wrapf(err, "schema validate %s", args[0])
		}
		fmt.Fprintf(os.Stdout, "%s: ok (%d schema(s))\n", args[0], len(reg.Names()))
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaListCmd)
	schemaCmd.AddCommand(schemaShowCmd)
	schemaCmd.AddCommand(schemaValidateCmd)
	rootCmd.AddCommand(schemaCmd)
}
