package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ngld/dlibbuild/pkg"
	"github.com/ngld/dlibbuild/pkg/buildsys"
)

const (
	cudaFlavor     = "CUDA-118"
	nativeBuildDir = "build_win_desktop_cuda-118_x64"
	nativeArgs     = "Build.ps1 Release cuda 64 desktop 118"
)

// nativeLibraries maps the native project directories below src to the DLL they produce
var nativeLibraries = []struct {
	Dir string
	DLL string
}{
	{"DlibDotNet.Native", "DlibDotNetNative.dll"},
	{"DlibDotNet.Native.Dnn", "DlibDotNetNativeDnn.dll"},
}

func removeDir(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return eris.Wrapf(err, "Could not stat %s", dir)
	}

	buildsys.Log(ctx).Info().Msgf("Deleting %s", dir)
	if err := os.RemoveAll(dir); err != nil {
		return eris.Wrapf(err, "Could not delete %s", dir)
	}

	return nil
}

// cleanCandidates lists the obj and bin directories below src that Clean deletes.
// Directories whose path below src contains "build" are native build trees and stay.
func (p *Project) cleanCandidates() ([]string, error) {
	matches, err := buildsys.ResolvePatterns(p.Source, "**/obj", "**/bin")
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(matches))
	for _, item := range matches {
		info, err := os.Stat(item)
		if err != nil || !info.IsDir() {
			continue
		}

		rel, err := filepath.Rel(p.Source, item)
		if err != nil || strings.Contains(filepath.ToSlash(rel), "build") {
			continue
		}

		result = append(result, item)
	}

	return result, nil
}

func (p *Project) clean(ctx context.Context) error {
	dirs, err := p.cleanCandidates()
	if err != nil {
		return err
	}

	for _, dir := range dirs {
		if err = removeDir(ctx, dir); err != nil {
			return err
		}
	}

	return removeDir(ctx, p.Output)
}

func (p *Project) cleanPkg(ctx context.Context) error {
	return removeDir(ctx, p.Package)
}

func (p *Project) print(ctx context.Context) error {
	logger := buildsys.Log(ctx)
	repo := p.params.Repo

	logger.Info().Msg("STARTING BUILD")
	logger.Info().Msgf("SOURCE DIR: %s", p.Source)
	logger.Info().Msgf("OUTPUT DIR: %s", p.Output)

	if repo != nil {
		logger.Info().Msgf("Commit = %s", repo.Commit)
		logger.Info().Msgf("Branch = %s", repo.Branch)
		logger.Info().Msgf("Tags = %s", strings.Join(repo.Tags, ", "))
	} else {
		logger.Warn().Msg("Not a git repository")
	}

	logger.Info().Msgf("main branch = %t", repo.IsOnMainBranch())
	logger.Info().Msgf("main/master branch = %t", repo.IsOnMainOrMasterBranch())
	logger.Info().Msgf("VersionInfo = %s", p.Version())
	logger.Info().Msgf("Configuration = %s", p.Configuration())
	logger.Info().Msgf("Solution path = %s", p.SolutionFile())
	logger.Info().Msgf("Solution directory = %s", filepath.Dir(p.SolutionFile()))

	return nil
}

func (p *Project) prepare(ctx context.Context) error {
	for _, dir := range []string{p.Output, p.Build, p.Package, p.Publish} {
		if err := os.MkdirAll(dir, 0770); err != nil {
			return eris.Wrapf(err, "Failed to create %s", dir)
		}
	}

	return nil
}

func (p *Project) restore(ctx context.Context) error {
	dotnet, err := p.tool("dotnet")
	if err != nil {
		return err
	}

	return dotnet.Run(ctx, p.Root, restoreArgs(p.SolutionFile())...)
}

func (p *Project) compile(ctx context.Context) error {
	logger := buildsys.Log(ctx)
	logger.Info().Msgf("Compiling %s", filepath.Base(p.SolutionFile()))
	logger.Info().Msgf("Version %s", p.Version())
	logger.Info().Msgf("On %s", p.Configuration())
	logger.Info().Msgf("To %s", p.Build)

	dotnet, err := p.tool("dotnet")
	if err != nil {
		return err
	}

	return dotnet.Run(ctx, p.Root, buildArgs(p.SolutionFile(), p.Version(), p.Configuration(), p.Build)...)
}

// managedProject is the DlibDotNet project file inside the solution
func (p *Project) managedProject() string {
	return filepath.Join(p.Source, "DlibDotNet", "DlibDotNet.csproj")
}

// nuspecFile is the package manifest for the CUDA flavor
func (p *Project) nuspecFile() string {
	return filepath.Join(p.Root, "nuget", "nuspec", "DlibDotNet."+cudaFlavor+".nuspec")
}

func (p *Project) preparePack(ctx context.Context) error {
	dotnet, err := p.tool("dotnet")
	if err != nil {
		return err
	}

	pwsh, err := p.tool("pwsh")
	if err != nil {
		return err
	}

	err = dotnet.Run(ctx, p.Root, publishArgs(p.managedProject(), p.Version(), p.Package)...)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(p.Package, 0770); err != nil {
		return eris.Wrapf(err, "Failed to create %s", p.Package)
	}

	for _, native := range nativeLibraries {
		dir := filepath.Join(p.Source, native.Dir)
		if err = pwsh.RunArgs(ctx, dir, nativeArgs); err != nil {
			return err
		}

		built := filepath.Join(dir, nativeBuildDir, "Release", native.DLL)
		if err = pkg.CopyInto(built, p.Package); err != nil {
			return err
		}
	}

	return pkg.CopyInto(p.nuspecFile(), p.Package)
}

// ArchiveFile returns the path of the tarball written by the Archive target
func (p *Project) ArchiveFile() string {
	base := "DlibDotNet." + cudaFlavor + "-" + p.Version()
	return filepath.Join(p.Publish, pkg.ArchiveName(base, p.params.ArchiveFormat))
}

func (p *Project) archive(ctx context.Context) error {
	dest := p.ArchiveFile()
	buildsys.Log(ctx).Info().Msgf("Packing %s", dest)

	return pkg.PackArchive(p.Package, dest, p.params.ArchiveFormat)
}
