package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/ieee0824/voicecluster-go/forest"
	"github.com/ieee0824/voicecluster-go/triphone"
)

// RunInspect prints the digest of a forest file.
func RunInspect(cmd *cobra.Command, args []string) error {
	f, err := loadForest(args[0])
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	s := f.Summary()
	out := cmd.OutOrStdout()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		b, err := sonic.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		fmt.Fprintln(out, string(b))
		return nil
	}

	fmt.Fprintf(out, "forest:    %s (schema %s)\n", s.Name, s.Schema)
	fmt.Fprintf(out, "questions: %d\n", s.Questions)
	fmt.Fprintf(out, "trees:     %d (%d nodes, %d leaves)\n", len(s.Trees), s.Nodes, s.Leaves)
	fmt.Fprintf(out, "states:    %v\n", s.States)
	fmt.Fprintf(out, "streams:   %v\n", s.Streams)
	if len(s.Phones) > 0 {
		fmt.Fprintf(out, "phones:    %s\n", strings.Join(s.Phones, " "))
	}
	for _, t := range s.Trees {
		fmt.Fprintf(out, "  %-28s %5d nodes %5d leaves\n", t.Name, t.Nodes, t.Leaves)
	}
	return nil
}

// RunCombine merges forest files into the first argument.
func RunCombine(cmd *cobra.Command, args []string) error {
	out := args[0]
	var parts []*forest.Forest
	for _, p := range args[1:] {
		f, err := loadForest(p)
		if err != nil {
			return err
		}
		parts = append(parts, f)
	}
	combined, err := forest.Combine(baseName(out), parts...)
	if err != nil {
		return err
	}
	if drop, _ := cmd.Flags().GetBool("resort"); drop {
		for _, q := range combined.ReSortQuestions() {
			fmt.Fprintf(cmd.ErrOrStderr(), "dropped question %s\n", q)
		}
	}
	return combined.SaveFile(out)
}

// RunPrune removes one stream index from every tree of a forest.
func RunPrune(cmd *cobra.Command, args []string) error {
	stream, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("stream index %q: %w", args[1], err)
	}
	f, err := loadForest(args[0])
	if err != nil {
		return err
	}
	if err := f.PruneStream(stream); err != nil {
		return err
	}
	return f.SaveFile(outputPath(cmd, args[0]))
}

// RunDelete removes leaves from a forest and reports the ones it dropped.
func RunDelete(cmd *cobra.Command, args []string) error {
	f, err := loadForest(args[0])
	if err != nil {
		return err
	}
	removed := f.DeleteLeaves(args[1:])
	for _, leaf := range removed {
		fmt.Fprintln(cmd.OutOrStdout(), leaf)
	}
	return f.SaveFile(outputPath(cmd, args[0]))
}

// RunTriphones prints, per leaf, the triphones of the inventory that reach it.
func RunTriphones(cmd *cobra.Command, args []string) error {
	f, err := loadForest(args[0])
	if err != nil {
		return err
	}
	inv, err := cfg.Inventory()
	if err != nil {
		return err
	}
	sets, err := triphone.EnumerateForest(f, inv.Phones())
	if err != nil {
		return err
	}

	only, _ := cmd.Flags().GetString("leaf")
	leaves := make([]string, 0, len(sets))
	for leaf := range sets {
		if only == "" || leaf == only {
			leaves = append(leaves, leaf)
		}
	}
	if only != "" && len(leaves) == 0 {
		return fmt.Errorf("leaf %q not found", only)
	}
	sort.Strings(leaves)

	expand, _ := cmd.Flags().GetBool("expand")
	out := cmd.OutOrStdout()
	for _, leaf := range leaves {
		s := sets[leaf]
		if !expand {
			fmt.Fprintf(out, "%s\t%d\tL={%s} C={%s} R={%s}\n", leaf, s.Size(),
				strings.Join(s.Left, ","), strings.Join(s.Central, ","), strings.Join(s.Right, ","))
			continue
		}
		for _, t := range s.Triphones() {
			fmt.Fprintf(out, "%s\t%s\n", leaf, t)
		}
	}
	return nil
}

func outputPath(cmd *cobra.Command, input string) string {
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		return out
	}
	return input
}
