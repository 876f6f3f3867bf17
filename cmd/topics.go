package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/topic-research/internal/topic"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the topic catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog, err := topic.Load(cfg.Topics.CatalogPath)
		if err != nil {
			return eris.Wrap(err, "load topic catalog")
		}
		formatTopics(os.Stdout, catalog.WithDefault(cfg.Topics.DefaultKey))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(topicsCmd)
}

// formatTopics writes the catalog as a table, marking the default topic.
func formatTopics(out io.Writer, c *topic.Catalog) {
	def := c.Default().Key

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tLABEL\tDOMAIN")
	for _, t := range c.Topics() {
		key := t.Key
		if key == def {
			key += " *"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", key, t.Label, t.Domain)
	}
	_ = w.Flush()
}
