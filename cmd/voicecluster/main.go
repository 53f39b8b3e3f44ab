// Command voicecluster inspects and edits clustered context-dependent
// acoustic models: decision forests, macro files and the leaf index.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ieee0824/voicecluster-go/cmd/voicecluster/commands"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "voicecluster",
		Short:             "Inspect and edit decision-tree clustered acoustic models",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: commands.LoadConfig,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Configuration file path")
	pf.String("log-level", "warn", "Logging level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
	pf.String("inventory", "", "Phoneme inventory file (default: built-in Japanese set)")
	pf.String("dict", "", "Pronunciation dictionary file")
	pf.String("groups", "", "Phone group file for question generation")
	pf.String("index", "voicecluster.db", "Leaf index database")
	pf.String("boundary", "sil", "Context phone placed around words")
	pf.Bool("variance-floors", false, "Apply varFloor macros when loading models")

	viper.BindPFlag("config", pf.Lookup("config"))
	viper.BindPFlag("log.level", pf.Lookup("log-level"))
	viper.BindPFlag("log.format", pf.Lookup("log-format"))
	viper.BindPFlag("inventory", pf.Lookup("inventory"))
	viper.BindPFlag("dict", pf.Lookup("dict"))
	viper.BindPFlag("groups", pf.Lookup("groups"))
	viper.BindPFlag("index", pf.Lookup("index"))
	viper.BindPFlag("boundary", pf.Lookup("boundary"))
	viper.BindPFlag("variance_floors", pf.Lookup("variance-floors"))

	inspectCmd := &cobra.Command{
		Use:   "inspect FOREST",
		Short: "Print a summary of a forest file",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunInspect,
	}
	inspectCmd.Flags().Bool("json", false, "Print the summary as JSON")

	combineCmd := &cobra.Command{
		Use:   "combine OUT FOREST...",
		Short: "Merge forests; the first tree of a name wins",
		Args:  cobra.MinimumNArgs(2),
		RunE:  commands.RunCombine,
	}
	combineCmd.Flags().Bool("resort", false, "Drop questions no tree references")

	pruneCmd := &cobra.Command{
		Use:   "prune FOREST STREAM",
		Short: "Remove a stream index from every tree",
		Args:  cobra.ExactArgs(2),
		RunE:  commands.RunPrune,
	}
	pruneCmd.Flags().StringP("output", "o", "", "Output file (default: overwrite FOREST)")

	deleteCmd := &cobra.Command{
		Use:   "delete FOREST LEAF...",
		Short: "Delete leaves, merging them into their siblings",
		Args:  cobra.MinimumNArgs(2),
		RunE:  commands.RunDelete,
	}
	deleteCmd.Flags().StringP("output", "o", "", "Output file (default: overwrite FOREST)")

	triphonesCmd := &cobra.Command{
		Use:   "triphones FOREST",
		Short: "List the triphones reaching each leaf",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunTriphones,
	}
	triphonesCmd.Flags().String("leaf", "", "Only print this leaf")
	triphonesCmd.Flags().Bool("expand", false, "Print one triphone per line")

	lookupCmd := &cobra.Command{
		Use:   "lookup FOREST MODELS [LABEL]",
		Short: "Resolve a context label to its leaf streams",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  commands.RunLookup,
	}
	lookupCmd.Flags().String("word", "", "Resolve every triphone of a dictionary word")

	floorCmd := &cobra.Command{
		Use:   "floor MODELS",
		Short: "Apply variance floors to every stream",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunFloor,
	}
	floorCmd.Flags().StringP("output", "o", "", "Output file (default: overwrite MODELS)")

	convertCmd := &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Rewrite a macro file as text or binary",
		Args:  cobra.ExactArgs(2),
		RunE:  commands.RunConvert,
	}
	convertCmd.Flags().Bool("binary", false, "Write the binary form")

	questionsCmd := &cobra.Command{
		Use:   "questions",
		Short: "Generate phone questions from the phone group file",
		Args:  cobra.NoArgs,
		RunE:  commands.RunQuestions,
	}

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the leaf index",
	}
	indexCmd.AddCommand(
		&cobra.Command{
			Use:   "build FOREST",
			Short: "Enumerate a forest into a new build",
			Args:  cobra.ExactArgs(1),
			RunE:  commands.RunIndexBuild,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored builds",
			Args:  cobra.NoArgs,
			RunE:  commands.RunIndexList,
		},
		&cobra.Command{
			Use:   "query BUILD TRIPHONE",
			Short: "Print the leaves a triphone reaches",
			Args:  cobra.ExactArgs(2),
			RunE:  commands.RunIndexQuery,
		},
		&cobra.Command{
			Use:   "rm BUILD",
			Short: "Delete a build",
			Args:  cobra.ExactArgs(1),
			RunE:  commands.RunIndexDelete,
		},
	)

	rootCmd.AddCommand(inspectCmd, combineCmd, pruneCmd, deleteCmd, triphonesCmd,
		lookupCmd, floorCmd, convertCmd, questionsCmd, indexCmd)
	return rootCmd
}
