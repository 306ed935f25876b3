package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/dlibbuild/pkg/buildsys"
)

// recordFile is where the CLI keeps the record of the last run, relative to the project root
var recordFile = filepath.Join("output", ".build", "last-run.gob")

func newLastRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "last-run",
		Short: "Shows which tasks ran during the previous build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := opts.projectRoot()
			if err != nil {
				return err
			}

			record, err := buildsys.ReadRecord(filepath.Join(root, recordFile))
			if err != nil {
				if eris.Is(err, os.ErrNotExist) {
					return eris.New("no build has been recorded yet")
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Targets:  %v\n", record.Targets)
			fmt.Fprintf(out, "Started:  %s\n", record.Started.Format(time.RFC3339))
			fmt.Fprintf(out, "Duration: %s\n", record.Finished.Sub(record.Started).Round(time.Millisecond))

			for _, name := range record.Plan {
				fmt.Fprintf(out, " * %-12s %s\n", record.States[name].String()+":", name)
			}

			if record.Succeeded() {
				fmt.Fprintln(out, "Result:   succeeded")
			} else {
				fmt.Fprintf(out, "Result:   %s failed\n%s\n", record.Failed, record.Error)
			}

			return nil
		},
	}
}
