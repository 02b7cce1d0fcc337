package cli

import (
	"github.com/spf13/cobra"
)

// NewCatalogCmd создаёт команду просмотра каталога отраслей и целей.
func NewCatalogCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List known specialties and goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			catalog, err := client.GetCatalog()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(catalog.Specialties)+len(catalog.Goals))
			for _, s := range catalog.Specialties {
				rows = append(rows, []string{"specialty", s})
			}
			for _, g := range catalog.Goals {
				rows = append(rows, []string{"goal", g})
			}

			out.Print([]string{"KIND", "NAME"}, rows, catalog)
			return nil
		},
	}
}
