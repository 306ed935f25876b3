package config

// Source provides a value for the override chain. ok is false if the source has nothing to say.
type Source struct {
	Name  string
	Value func() (value string, ok bool)
}

// Explicit is a source for values set by the user (flags, environment, config file).
// Empty values are treated as unset.
func Explicit(name, value string) Source {
	return Source{
		Name: name,
		Value: func() (string, bool) {
			return value, value != ""
		},
	}
}

// Detected wraps a function that derives a value from the environment
func Detected(name string, detect func() (string, bool)) Source {
	return Source{Name: name, Value: detect}
}

// Default always provides the given value
func Default(value string) Source {
	return Source{
		Name: "default",
		Value: func() (string, bool) {
			return value, true
		},
	}
}

// Resolve returns the value of the first source that provides one, along with that source's name.
func Resolve(sources ...Source) (value, origin string) {
	for _, source := range sources {
		if v, ok := source.Value(); ok {
			return v, source.Name
		}
	}

	return "", ""
}

// serverVariables are set by common CI systems
var serverVariables = []string{
	"CI",
	"TF_BUILD",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"TEAMCITY_VERSION",
	"APPVEYOR",
	"TRAVIS",
	"BUILDKITE",
}

// IsServerBuild reports whether the process looks like it's running on a CI server
func IsServerBuild(getenv func(string) string) bool {
	for _, name := range serverVariables {
		switch value := getenv(name); value {
		case "", "0", "false", "False":
		default:
			return true
		}
	}
	return false
}

// ResolveConfiguration picks the build configuration: the flag value, then the configured
// value (environment or build.toml), then Release on CI servers, then Debug.
func ResolveConfiguration(flag string, cfg *Config, getenv func(string) string) (string, string, error) {
	configured := ""
	if cfg != nil {
		configured = cfg.Configuration
	}

	value, origin := Resolve(
		Explicit("flag", flag),
		Explicit("config", configured),
		Detected("server", func() (string, bool) {
			return Release, IsServerBuild(getenv)
		}),
		Default(Debug),
	)

	normalized, err := NormalizeConfiguration(value)
	if err != nil {
		return "", origin, err
	}

	return normalized, origin, nil
}
