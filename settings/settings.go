// Package settings defines sightline's typed configuration, read from
// .sightline.toml in the workspace root and overlaid with editor settings.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FileName is the config file looked up in the workspace root.
const FileName = ".sightline.toml"

// Settings is the root configuration document.
type Settings struct {
	Hover Hover              `toml:"hover" json:"hover"`
	Build Build              `toml:"build" json:"build"`
	Run   []RunConfiguration `toml:"run" json:"run"`
}

// Hover controls the language tag attached to hover documentation.
type Hover struct {
	// Language, when set, tags every hover regardless of the file.
	Language string `toml:"language" json:"language"`
	// Languages maps an LSP language id to the tag used for its files.
	Languages map[string]string `toml:"languages" json:"languages"`
}

// Build configures the toolchain used by the build subsystem.
type Build struct {
	// Toolchain names the toolchain. An empty value means none is configured
	// and builds are refused.
	Toolchain string `toml:"toolchain" json:"toolchain"`
	// Command is an optional external checker run after the syntax pass,
	// e.g. ["go", "vet", "./..."]. Its output is parsed as file:line:col: msg.
	Command []string `toml:"command" json:"command"`
	// Timeout bounds the external command.
	Timeout Duration `toml:"timeout" json:"timeout"`
}

// RunConfiguration is a named build target.
type RunConfiguration struct {
	ID    string   `toml:"id" json:"id"`
	Name  string   `toml:"name" json:"name"`
	Paths []string `toml:"paths" json:"paths"`
	// CompileBeforeLaunch defaults to true; false opts the configuration
	// out of builds.
	CompileBeforeLaunch *bool `toml:"compile_before_launch" json:"compileBeforeLaunch"`
}

// SkipCompileBeforeLaunch reports whether the configuration excludes the
// compile step.
func (r RunConfiguration) SkipCompileBeforeLaunch() bool {
	return r.CompileBeforeLaunch != nil && !*r.CompileBeforeLaunch
}

// Duration is a time.Duration that decodes from strings like "30s" in both
// TOML and JSON.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the settings used when no config file exists: the built-in
// syntax toolchain and a single run configuration covering the workspace.
func Default() Settings {
	return Settings{
		Build: Build{
			Toolchain: "syntax",
			Timeout:   Duration(2 * time.Minute),
		},
		Run: []RunConfiguration{{ID: "default", Name: "Workspace"}},
	}
}

// Validate checks the settings for internal consistency.
func (s *Settings) Validate() error {
	var errs []error
	if s.Build.Timeout < 0 {
		errs = append(errs, fmt.Errorf("build.timeout must not be negative"))
	}
	if len(s.Build.Command) > 0 && strings.TrimSpace(s.Build.Command[0]) == "" {
		errs = append(errs, fmt.Errorf("build.command: empty program name"))
	}
	seen := make(map[string]bool, len(s.Run))
	for i, rc := range s.Run {
		if rc.ID == "" {
			errs = append(errs, fmt.Errorf("run[%d]: id is required", i))
			continue
		}
		if seen[rc.ID] {
			errs = append(errs, fmt.Errorf("run[%d]: duplicate id %q", i, rc.ID))
		}
		seen[rc.ID] = true
	}
	return errors.Join(errs...)
}

// RunConfiguration looks up a run configuration by id.
func (s *Settings) RunConfiguration(id string) (RunConfiguration, bool) {
	for _, rc := range s.Run {
		if rc.ID == id {
			return rc, true
		}
	}
	return RunConfiguration{}, false
}

// HoverTag returns the language tag for hover text of a file with the given
// LSP language id.
func (s *Settings) HoverTag(languageID string) string {
	if s.Hover.Language != "" {
		return s.Hover.Language
	}
	if tag, ok := s.Hover.Languages[languageID]; ok && tag != "" {
		return tag
	}
	return languageID
}
