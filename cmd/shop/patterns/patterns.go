package patterns

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pioneerstudio/patternshop/cmd/internal"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var imageExts = []string{".png", ".webp", ".jpg", ".jpeg"}

var price int64

// PatternsCmd represents the patterns command group
var PatternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Commands for the pattern catalog.",
}

var seedCmd = &cobra.Command{
	Use:   "seed <dir>",
	Short: "Import every image of a directory as an active pattern, skipping slugs that already exist.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt := internal.From(cmd)
		entries, err := os.ReadDir(args[0])
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("price") {
			price = rt.Settings.Catalog.DefaultPrice
		}
		files := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			return filepath.Join(args[0], e.Name()), !e.IsDir() && lo.Contains(imageExts, ext)
		})
		if len(files) == 0 {
			internal.Note(cmd, "no images found in %s", args[0])
			return nil
		}
		var created, skipped int
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			p, ok, err := rt.Shop.Seed(cmd.Context(), file, data, price)
			if err != nil {
				return err
			}
			if !ok {
				skipped++
				internal.Note(cmd, "skip %s (slug exists)", filepath.Base(file))
				continue
			}
			created++
			fmt.Fprintf(cmd.OutOrStdout(), "created %s -> %s\n", filepath.Base(file), p.Slug)
		}
		internal.Done(cmd, "%d created, %d skipped", created, skipped)
		return nil
	},
}

func init() {
	seedCmd.Flags().Int64Var(&price, "price", 0, "price in cents (defaults to catalog.default_price)")
	PatternsCmd.AddCommand(seedCmd)
}
