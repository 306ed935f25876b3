// Package cmd implements the build command line
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/dlibbuild/pkg"
	"github.com/ngld/dlibbuild/pkg/buildsys"
	"github.com/ngld/dlibbuild/pkg/config"
	"github.com/ngld/dlibbuild/pkg/git"
	"github.com/ngld/dlibbuild/pkg/project"
)

type rootOptions struct {
	root          string
	configuration string
	logLevel      string
	dryRun        bool
	list          bool
	progress      bool
	json          bool
	// helper is the binary that provides "tool mv|rm|mkdir|cp"; empty disables rerouting
	helper string
}

func (o *rootOptions) projectRoot() (string, error) {
	if o.root != "" {
		return filepath.Abs(o.root)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", eris.Wrap(err, "Failed to retrieve the current working directory")
	}

	return pkg.FindProjectRoot(wd)
}

// splitArgs separates target names from key=value script options
func splitArgs(args []string) ([]string, map[string]string) {
	targets := make([]string, 0)
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			targets = append(targets, part)
		}
	}

	return targets, options
}

func newLogger(cfg *config.Config, out io.Writer, root string) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.Log.JSON {
		logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(NewConsoleWriter(out, root))
	}

	return logger.Level(cfg.LogLevel())
}

// applyFlags lets explicitly passed flags override the loaded configuration
func (o *rootOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("json") {
		cfg.Log.JSON = o.json
	}
	if flags.Changed("progress") {
		cfg.Progress = o.progress
	}

	return cfg.Validate()
}

func listTasks(out io.Writer, g *buildsys.Graph, options map[string]buildsys.ScriptOption) {
	fmt.Fprintln(out, "Available tasks:")
	maxNameLen := 0
	sortedNames := make([]string, 0, g.Len())
	for _, name := range g.Names() {
		task, _ := g.Task(name)
		if task.Hidden {
			continue
		}

		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
		sortedNames = append(sortedNames, name)
	}

	sort.Strings(sortedNames)

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range sortedNames {
		task, _ := g.Task(name)
		desc := task.Desc
		if name == project.DefaultTarget {
			desc += " (default)"
		}
		fmt.Fprintf(out, lineFmt, name+":", desc)
	}

	if len(options) == 0 {
		return
	}

	fmt.Fprintln(out, "\nOptions:")
	optionNames := make([]string, 0, len(options))
	for name := range options {
		optionNames = append(optionNames, name)
	}
	sort.Strings(optionNames)

	for _, name := range optionNames {
		opt := options[name]
		fmt.Fprintf(out, " * %s=%q: %s\n", name, opt.Default(), opt.Help)
	}
}

func (o *rootOptions) run(cmd *cobra.Command, args []string) error {
	targets, options := splitArgs(args)

	root, err := o.projectRoot()
	if err != nil {
		return err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	if err = o.applyFlags(cmd, cfg); err != nil {
		return err
	}

	logger := newLogger(cfg, cmd.ErrOrStderr(), root)
	if cfg.Progress && !o.dryRun && !o.list {
		// task output would tear up the progress bar
		logger = logger.Level(zerolog.WarnLevel)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = buildsys.WithLogger(ctx, &logger)

	configuration, origin, err := config.ResolveConfiguration(o.configuration, cfg, os.Getenv)
	if err != nil {
		return err
	}
	logger.Debug().Str("origin", origin).Msgf("Configuration %s", configuration)

	buildsys.SetHelperBinary(o.helper)

	repo, err := git.Query(ctx, root)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read git information")
	}

	builder := buildsys.NewBuilder()
	_, err = project.Register(builder, project.Params{
		Root:          root,
		Configuration: configuration,
		Solution:      cfg.Solution,
		ArchiveFormat: cfg.Archive.Format,
		Repo:          repo,
	})
	if err != nil {
		return err
	}

	scriptOptions := map[string]buildsys.ScriptOption{}
	scriptPath := filepath.Join(root, buildsys.ScriptFile)
	if _, err = os.Stat(scriptPath); err == nil {
		scriptOptions, err = buildsys.LoadScript(ctx, builder, scriptPath, root, options)
		if err != nil {
			return eris.Wrapf(err, "Failed to load %s", buildsys.ScriptFile)
		}
	} else if !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "Failed to check %s", scriptPath)
	}

	for name := range options {
		if _, ok := scriptOptions[name]; !ok {
			return eris.Errorf("unknown option %s", name)
		}
	}

	graph := builder.Build()
	out := cmd.OutOrStdout()

	if o.list {
		listTasks(out, graph, scriptOptions)
		return nil
	}

	if len(targets) == 0 {
		targets = []string{project.DefaultTarget}
	}

	if o.dryRun {
		plan, err := graph.Plan(targets...)
		if err != nil {
			return err
		}

		pkg.PrintTask(out, fmt.Sprintf("Plan for %s (%s)", strings.Join(targets, ", "), configuration))
		for _, name := range plan {
			pkg.PrintSubtask(out, name)
		}
		return nil
	}

	if cfg.Progress {
		ctx = buildsys.WithHooks(ctx, progressHooks(cmd.ErrOrStderr()))
	}

	record, runErr := graph.RunTargets(ctx, targets...)
	if record != nil {
		if err = buildsys.WriteRecord(filepath.Join(root, recordFile), record); err != nil {
			logger.Warn().Err(err).Msg("Failed to save the run record")
		}
	}

	if runErr != nil {
		return runErr
	}

	logger.Info().Msgf("Finished %s", strings.Join(targets, ", "))
	return nil
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "build [targets...] [option=value...]",
		Short: "Builds DlibDotNet",
		Long: `Runs the given targets and everything they depend on. Without targets, Compile is built.

Additional tasks can be declared in a tasks.star file in the project root. Arguments of
the form option=value set the options declared by that file.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          opts.run,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.root, "root", "", "project root (defaults to the nearest parent with .git or tasks.star)")

	flags = rootCmd.Flags()
	flags.StringVarP(&opts.configuration, "configuration", "c", "", "configuration to build - default is 'Debug' (local) or 'Release' (server)")
	flags.BoolVarP(&opts.dryRun, "dry", "n", false, "dry run; only print the tasks that would run")
	flags.BoolVarP(&opts.list, "list", "l", false, "list the available tasks and options")
	flags.BoolVar(&opts.progress, "progress", false, "show a progress bar instead of task output")
	flags.StringVar(&opts.logLevel, "log-level", "info", "minimum log level (trace, debug, info, warn, error)")
	flags.BoolVar(&opts.json, "json", false, "write JSON log lines")

	rootCmd.AddCommand(newLastRunCmd(opts), newToolCmd())
	return rootCmd
}

// NewRootCmd builds the command tree. Shell actions reroute mv, rm, mkdir and cp to the
// running binary.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	if self, err := os.Executable(); err == nil {
		opts.helper = self
	}

	return newRootCmd(opts)
}

// run executes cmd with args and returns the process exit code. Errors are printed to stderr.
func run(cmd *cobra.Command, args []string, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		pkg.PrintError(stderr, err.Error())
		return 1
	}

	return 0
}

func Execute() {
	os.Exit(run(NewRootCmd(), os.Args[1:], os.Stderr))
}
