package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	voicecluster "github.com/ieee0824/voicecluster-go"
	"github.com/ieee0824/voicecluster-go/leafindex"
	"github.com/ieee0824/voicecluster-go/triphone"
)

// RunLookup resolves a context label, or every triphone of a dictionary
// word, to its leaf streams.
func RunLookup(cmd *cobra.Command, args []string) error {
	v, err := loadVoice(args[0], args[1])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if word, _ := cmd.Flags().GetString("word"); word != "" {
		byTri, err := v.ResolveWord(word)
		if err != nil {
			return err
		}
		tris := make([]triphone.Triphone, 0, len(byTri))
		for t := range byTri {
			tris = append(tris, t)
		}
		sort.Slice(tris, func(i, j int) bool { return tris[i] < tris[j] })
		for _, t := range tris {
			fmt.Fprintln(out, t)
			printResolutions(out, byTri[t])
		}
		return nil
	}

	if len(args) < 3 {
		return fmt.Errorf("lookup needs a label or --word")
	}
	res, err := v.ResolveText(args[2])
	if err != nil {
		return err
	}
	printResolutions(out, res)
	return nil
}

func printResolutions(w io.Writer, res []voicecluster.Resolution) {
	for _, r := range res {
		fmt.Fprintf(w, "  state %d stream %d  %-24s %s  (%d mixtures)\n",
			r.State, r.Stream, r.Tree, r.Leaf, len(r.Model.Mixture))
	}
}

func openIndex() (*leafindex.Store, error) {
	return leafindex.Open(cfg.IndexPath)
}

// RunIndexBuild enumerates a forest and stores the leaf sets as a new build.
func RunIndexBuild(cmd *cobra.Command, args []string) error {
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
	store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()

	b, err := store.Save(f.Name(), inv.Phones(), sets)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d leaves\n", b.ID, b.Forest, b.Leaves)
	return nil
}

// RunIndexList prints the stored builds.
func RunIndexList(cmd *cobra.Command, args []string) error {
	store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()

	builds, err := store.Builds()
	if err != nil {
		return err
	}
	for _, b := range builds {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d leaves\n",
			b.ID, b.CreatedAt.Format("2006-01-02 15:04:05"), b.Forest, b.Leaves)
	}
	return nil
}

// RunIndexQuery prints the leaves of a build that a triphone reaches.
func RunIndexQuery(cmd *cobra.Command, args []string) error {
	store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()

	leaves, err := store.Leaves(args[0], triphone.Triphone(args[1]))
	if err != nil {
		return err
	}
	for _, l := range leaves {
		fmt.Fprintln(cmd.OutOrStdout(), l)
	}
	return nil
}

// RunIndexDelete removes a build.
func RunIndexDelete(cmd *cobra.Command, args []string) error {
	store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Delete(args[0])
}
