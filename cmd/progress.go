package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/ngld/dlibbuild/pkg/buildsys"
	"github.com/ngld/dlibbuild/pkg/config"
)

// progressHooks renders a progress bar with one step per task
func progressHooks(out io.Writer) buildsys.Hooks {
	var bar *progressbar.ProgressBar

	return buildsys.Hooks{
		OnPlan: func(plan []string) {
			bar = progressbar.NewOptions(len(plan),
				progressbar.OptionSetWriter(out),
				progressbar.OptionSetDescription("Starting"),
				progressbar.OptionShowCount(),
				// the bar only leaves a bunch of newlines in CI logs
				progressbar.OptionSetVisibility(!config.IsServerBuild(os.Getenv)),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprint(out, "\n")
				}),
			)
		},
		OnStart: func(task string) {
			bar.Describe(task)
		},
		OnFinish: func(task string, err error) {
			if err == nil {
				bar.Add(1)
			} else {
				bar.Describe(task + " failed")
				fmt.Fprint(out, "\n")
			}
		},
	}
}
