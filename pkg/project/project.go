// Package project defines the DlibDotNet build targets.
package project

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/ngld/dlibbuild/pkg/buildsys"
	"github.com/ngld/dlibbuild/pkg/config"
	"github.com/ngld/dlibbuild/pkg/git"
)

// DefaultTarget runs when no target is passed on the command line
const DefaultTarget = "Compile"

// Target names
const (
	TargetClean       = "Clean"
	TargetCleanPkg    = "CleanPkg"
	TargetPrint       = "Print"
	TargetPrepare     = "Prepare"
	TargetRestore     = "Restore"
	TargetCompile     = "Compile"
	TargetPreparePack = "PreparePack"
	TargetArchive     = "Archive"
)

// Paths holds the directories the targets read from and write to
type Paths struct {
	Root    string
	Source  string
	Output  string
	Build   string
	Package string
	Publish string
}

// NewPaths derives all directories from the project root
func NewPaths(root string) Paths {
	output := filepath.Join(root, "output")

	return Paths{
		Root:    root,
		Source:  filepath.Join(root, "src"),
		Output:  output,
		Build:   filepath.Join(output, "build"),
		Package: filepath.Join(output, "package"),
		Publish: filepath.Join(output, "publish"),
	}
}

// Command runs an external program
type Command interface {
	Run(ctx context.Context, dir string, args ...string) error
	// RunArgs splits the argument string like a shell would
	RunArgs(ctx context.Context, dir, arguments string) error
}

// LookupFunc resolves an external program by name
type LookupFunc func(name string) (Command, error)

type toolCommand struct {
	tool buildsys.Tool
}

func (c toolCommand) Run(ctx context.Context, dir string, args ...string) error {
	return c.tool.InDir(dir).Run(ctx, args...)
}

func (c toolCommand) RunArgs(ctx context.Context, dir, arguments string) error {
	return c.tool.InDir(dir).RunArgs(ctx, arguments)
}

// toolEnv holds extra environment entries for specific programs
var toolEnv = map[string][]string{
	"dotnet": {"DOTNET_CLI_TELEMETRY_OPTOUT=1", "DOTNET_NOLOGO=1", "DOTNET_SKIP_FIRST_TIME_EXPERIENCE=1"},
}

// LookupPath finds programs in PATH
func LookupPath(name string) (Command, error) {
	tool, err := buildsys.LookupTool(name)
	if err != nil {
		return nil, err
	}

	return toolCommand{tool: tool.WithEnv(toolEnv[name]...)}, nil
}

// Params configures the registered targets
type Params struct {
	Root          string
	Configuration string
	Solution      string
	ArchiveFormat string
	// Repo may be nil if the project is not a git checkout
	Repo *git.Repository
	// Lookup defaults to LookupPath
	Lookup LookupFunc
}

// Project carries the state shared by all target actions
type Project struct {
	Paths
	params Params

	toolLock sync.Mutex
	tools    map[string]Command
}

// New validates the parameters and applies defaults
func New(params Params) (*Project, error) {
	root, err := filepath.Abs(params.Root)
	if err != nil {
		return nil, err
	}
	params.Root = root

	if params.Configuration == "" {
		params.Configuration = config.Debug
	}
	params.Configuration, err = config.NormalizeConfiguration(params.Configuration)
	if err != nil {
		return nil, err
	}

	if params.Solution == "" {
		params.Solution = "DlibDotNet.sln"
	}
	if params.ArchiveFormat == "" {
		params.ArchiveFormat = "xz"
	}
	if params.Lookup == nil {
		params.Lookup = LookupPath
	}

	return &Project{
		Paths:  NewPaths(root),
		params: params,
		tools:  make(map[string]Command),
	}, nil
}

// Version is the version stamped into build outputs
func (p *Project) Version() string {
	return p.params.Repo.Version()
}

// Configuration returns the normalized build configuration
func (p *Project) Configuration() string {
	return p.params.Configuration
}

// SolutionFile returns the absolute path to the solution
func (p *Project) SolutionFile() string {
	if filepath.IsAbs(p.params.Solution) {
		return p.params.Solution
	}
	return filepath.Join(p.Root, p.params.Solution)
}

// tool resolves external programs on first use so that targets which don't need them
// work without them being installed.
func (p *Project) tool(name string) (Command, error) {
	p.toolLock.Lock()
	defer p.toolLock.Unlock()

	if cmd, ok := p.tools[name]; ok {
		return cmd, nil
	}

	cmd, err := p.params.Lookup(name)
	if err != nil {
		return nil, err
	}

	p.tools[name] = cmd
	return cmd, nil
}

// Register adds all targets to b
func (p *Project) Register(b *buildsys.Builder) error {
	targets := []buildsys.Task{
		{
			Name:   TargetClean,
			Desc:   "Deletes obj and bin directories below src and the output directory",
			Before: []string{TargetRestore},
			Action: p.clean,
		},
		{
			Name:   TargetCleanPkg,
			Desc:   "Deletes the package directory",
			Action: p.cleanPkg,
		},
		{
			Name:   TargetPrint,
			Desc:   "Prints build information",
			Action: p.print,
		},
		{
			Name:   TargetPrepare,
			Desc:   "Creates the output directories",
			Deps:   []string{TargetPrint},
			Before: []string{TargetRestore},
			Action: p.prepare,
		},
		{
			Name:   TargetRestore,
			Desc:   "Restores NuGet packages",
			Deps:   []string{TargetPrint},
			Action: p.restore,
		},
		{
			Name:   TargetCompile,
			Desc:   "Builds the solution",
			Deps:   []string{TargetPrint, TargetPrepare, TargetRestore},
			Action: p.compile,
		},
		{
			Name:   TargetPreparePack,
			Desc:   "Publishes DlibDotNet and builds the CUDA native libraries into the package directory",
			Deps:   []string{TargetPrint, TargetCleanPkg},
			Action: p.preparePack,
		},
		{
			Name:   TargetArchive,
			Desc:   "Packs the package directory into a compressed tarball",
			Deps:   []string{TargetPreparePack},
			Action: p.archive,
		},
	}

	for _, task := range targets {
		if err := b.Register(task); err != nil {
			return err
		}
	}

	return nil
}

// Register is a shortcut for New() followed by Register()
func Register(b *buildsys.Builder, params Params) (*Project, error) {
	p, err := New(params)
	if err != nil {
		return nil, err
	}

	return p, p.Register(b)
}
