package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	voicecluster "github.com/ieee0824/voicecluster-go"
)

// RunFloor applies the varFloor macros of a macro file to its streams.
func RunFloor(cmd *cobra.Command, args []string) error {
	binary, err := isBinaryFile(args[0])
	if err != nil {
		return err
	}
	mf, err := voicecluster.LoadModels(args[0])
	if err != nil {
		return err
	}
	n, err := mf.ApplyVarianceFloors()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "floored %d streams\n", n)
	return saveModels(outputPath(cmd, args[0]), mf, binary)
}

// RunConvert rewrites a macro file in text or binary form.
func RunConvert(cmd *cobra.Command, args []string) error {
	mf, err := voicecluster.LoadModels(args[0])
	if err != nil {
		return err
	}
	if err := mf.Validate(); err != nil {
		return err
	}
	binary, _ := cmd.Flags().GetBool("binary")
	return saveModels(args[1], mf, binary)
}
