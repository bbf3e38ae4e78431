package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/fixengine/internal/fast"
)

var dictionaryCmd = &cobra.Command{
	Use:   "dictionary [file]",
	Short: "Validate a dictionary and print a summary",
	Long: `Loads a YAML dictionary (or the built-in profile for --begin-string when no
file is given), checks that FAST templates can be derived from it, and
prints its messages.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDictionary,
}

var dictionaryBeginString string

func init() {
	rootCmd.AddCommand(dictionaryCmd)
	dictionaryCmd.Flags().StringVar(&dictionaryBeginString, "begin-string", "FIX.4.4", "built-in profile to show when no file is given")
}

func runDictionary(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	}
	d, err := loadDictionary(path, dictionaryBeginString)
	if err != nil {
		return err
	}
	reg, err := fast.RegistryFromDictionary(d, 1)
	if err != nil {
		return fmt.Errorf("failed to derive FAST templates: %w", err)
	}

	out := cmd.OutOrStdout()
	msgs := d.Messages()
	fmt.Fprintf(out, "%s: %d fields, %d messages\n", d.Version(), len(d.Fields()), len(msgs))
	for _, m := range msgs {
		kind := "app"
		if m.IsAdmin() {
			kind = "admin"
		}
		tmpl := "-"
		if t, ok := reg.ForMsgType(m.MsgType); ok {
			tmpl = fmt.Sprint(t.ID)
		}
		fmt.Fprintf(out, "  %-3s %-28s %-5s template %s\n", m.MsgType, m.Name, kind, tmpl)
	}
	return nil
}
