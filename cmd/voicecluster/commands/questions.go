package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/label"
	"github.com/ieee0824/voicecluster-go/lexicon"
	"github.com/ieee0824/voicecluster-go/question"
)

// RunQuestions writes QS lines for every phone slot from the configured
// phone-group file. The groups must cover the inventory.
func RunQuestions(cmd *cobra.Command, args []string) error {
	if cfg.GroupsPath == "" {
		return fmt.Errorf("%w: no phone group file configured (--groups)", errs.ErrReference)
	}
	groups, err := lexicon.LoadPhoneGroupsFile(cfg.GroupsPath)
	if err != nil {
		return err
	}
	inv, err := cfg.Inventory()
	if err != nil {
		return err
	}
	schema, err := cfg.BuildSchema()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, feature := range []string{label.FeatureLeftPhone, label.FeatureCentralPhone, label.FeatureRightPhone} {
		qs, err := question.FromPhoneGroups(feature, groups, inv.Phones(), schema)
		if err != nil {
			return fmt.Errorf("%s questions: %w", feature, err)
		}
		for _, q := range qs {
			fmt.Fprintln(out, q.Expression())
		}
	}
	return nil
}
