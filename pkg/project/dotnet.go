package project

import "github.com/ngld/dlibbuild/pkg/config"

const verbosity = "normal"

func versionProperty(version string) string {
	return "-p:Version=" + version
}

func restoreArgs(solution string) []string {
	return []string{"restore", solution, "--verbosity", verbosity}
}

func buildArgs(solution, version, configuration, output string) []string {
	return []string{
		"build", solution,
		versionProperty(version),
		"--configuration", configuration,
		"--output", output,
		"--verbosity", verbosity,
	}
}

// publishArgs always builds a trimmed Release for Windows
func publishArgs(project, version, output string) []string {
	return []string{
		"publish", project,
		versionProperty(version),
		"--configuration", config.Release,
		"--runtime", "win",
		"-p:PublishTrimmed=true",
		"--output", output,
		"--verbosity", verbosity,
	}
}
