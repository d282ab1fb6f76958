package cli

import (
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/feedforge/forger/internal/config"
)

func newRecipesCmd(getConfig func() config.Config, getOutput func() OutputFormat) *cobra.Command {
	return &cobra.Command{
		Use:   "recipes",
		Short: "List configured recipes and their sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()

			names := make([]string, 0, len(cfg.Recipes))
			for name := range cfg.Recipes {
				names = append(names, name)
			}
			sort.Strings(names)

			infos := make([]RecipeInfo, 0, len(names))
			for _, name := range names {
				recipe := cfg.Recipes[name]
				infos = append(infos, RecipeInfo{
					Name:    name,
					Sources: len(recipe.URLs),
					Filters: len(recipe.Filters),
					Fulfill: recipe.Fulfill,
					URLs:    recipe.URLs,
				})
			}

			if getOutput() == OutputJSON {
				return writeJSON(os.Stdout, infos)
			}
			writeRecipesTable(os.Stdout, infos)
			return nil
		},
	}
}
