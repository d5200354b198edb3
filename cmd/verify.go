package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/store"
	"github.com/reelmatch/match-cli/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Confirm, correct, or dispute a fused profile attribute",
	Long:  "Verification acts on a completed run's fused profile. Every action appends to the claim's revision history; nothing is overwritten.",
}

// -- verify confirm --

var verifyConfirmCmd = &cobra.Command{
	Use:   "confirm <run-id> <attribute>",
	Short: "Confirm an attribute value as correct",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		as, _ := cmd.Flags().GetString("as")

		provenance, err := confirmProvenance(as)
		if err != nil {
			return err
		}

		return runVerifyAction(cmd.Context(), args[0], args[1], func(c model.AttributeClaim) (model.AttributeClaim, error) {
			return verify.Confirm(c, provenance, actor), nil
		})
	},
}

// -- verify correct --

var verifyCorrectCmd = &cobra.Command{
	Use:   "correct <run-id> <attribute>",
	Short: "Replace an attribute value with a human correction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		value, _ := cmd.Flags().GetString("value")
		reason, _ := cmd.Flags().GetString("reason")

		if value == "" {
			return eris.New("--value is required")
		}

		return runVerifyAction(cmd.Context(), args[0], args[1], func(c model.AttributeClaim) (model.AttributeClaim, error) {
			return verify.Correct(c, value, actor, reason), nil
		})
	},
}

// -- verify dispute --

var verifyDisputeCmd = &cobra.Command{
	Use:   "dispute <run-id> <attribute>",
	Short: "Mark an attribute value as disputed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		reason, _ := cmd.Flags().GetString("reason")

		return runVerifyAction(cmd.Context(), args[0], args[1], func(c model.AttributeClaim) (model.AttributeClaim, error) {
			return verify.Dispute(c, actor, reason), nil
		})
	},
}

func init() {
	verifyCmd.PersistentFlags().String("actor", "", "who is performing the verification")
	_ = verifyCmd.MarkPersistentFlagRequired("actor")

	verifyConfirmCmd.Flags().String("as", "creator", "confirmation authority: creator or brand")
	verifyCorrectCmd.Flags().String("value", "", "the corrected attribute value")
	verifyCorrectCmd.Flags().String("reason", "", "why the value is being corrected")
	verifyDisputeCmd.Flags().String("reason", "", "why the value is disputed")

	verifyCmd.AddCommand(verifyConfirmCmd)
	verifyCmd.AddCommand(verifyCorrectCmd)
	verifyCmd.AddCommand(verifyDisputeCmd)
	rootCmd.AddCommand(verifyCmd)
}

// confirmProvenance maps the --as flag to a confirmation provenance.
func confirmProvenance(as string) (model.Provenance, error) {
	switch as {
	case "creator":
		return model.ProvenanceCreatorConfirmed, nil
	case "brand":
		return model.ProvenanceBrandVerified, nil
	default:
		return "", eris.Errorf("unknown confirmation authority %q (want creator or brand)", as)
	}
}

// runVerifyAction opens the store, applies the claim transformation, and
// prints the updated attribute with its derived verification state.
func runVerifyAction(ctx context.Context, runID, attr string, apply func(model.AttributeClaim) (model.AttributeClaim, error)) error {
	if err := cfg.Validate("local"); err != nil {
		return err
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	updated, err := applyClaimAction(ctx, st, runID, attr, apply)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Attribute    model.ResolvedAttribute `json:"attribute"`
		Verification model.VerificationState `json:"verification"`
	}{
		Attribute:    updated,
		Verification: verify.StateOf(updated.Claim),
	})
}

// applyClaimAction loads a run's fused profile, transforms one resolved
// attribute's claim, and persists the updated profile. Unknown attributes
// cannot be verified: there is no claim to act on.
func applyClaimAction(ctx context.Context, st store.Store, runID, attr string, apply func(model.AttributeClaim) (model.AttributeClaim, error)) (model.ResolvedAttribute, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return model.ResolvedAttribute{}, err
	}
	if run.Profile == nil {
		return model.ResolvedAttribute{}, eris.Errorf("run %s has no fused profile", runID)
	}

	ra, ok := run.Profile.Attributes[attr]
	if !ok || !ra.Known {
		return model.ResolvedAttribute{}, eris.Errorf("attribute %q is not resolved in run %s", attr, runID)
	}

	next, err := apply(ra.Claim)
	if err != nil {
		return model.ResolvedAttribute{}, err
	}

	ra.Claim = next
	run.Profile.Attributes[attr] = ra

	if err := st.UpdateRunProfile(ctx, runID, run.Profile); err != nil {
		return model.ResolvedAttribute{}, err
	}
	return ra, nil
}
