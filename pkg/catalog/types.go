package catalog

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the component kind a caller expects when starting or stopping a service
type Kind string

const (
	KindBackend  Kind = "backend"
	KindFrontend Kind = "frontend"
)

// ParseKind accepts the textual kind, case-insensitively
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindBackend:
		return KindBackend, nil
	case KindFrontend:
		return KindFrontend, nil
	}
	return "", fmt.Errorf("unknown kind '%s', expected backend or frontend", value)
}

// Language selects the environment a service is started with
type Language string

const (
	LanguagePython  Language = "python"
	LanguageCSharp  Language = "csharp"
	LanguageHTML    Language = "html"
	LanguageGeneric Language = "generic"
)

// ParseLanguage accepts the textual language tag, case-insensitively
func ParseLanguage(value string) (Language, error) {
	language := Language(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := languageEnvironment[language]; ok {
		return language, nil
	}
	return "", fmt.Errorf("unknown language '%s'", value)
}

// EnvironmentContext is what language contributions may draw from
type EnvironmentContext struct {
	RootDirectory    string
	WorkingDirectory string
	Port             int
}

type environmentContribution func(EnvironmentContext) []string

var languageEnvironment = map[Language]environmentContribution{
	LanguagePython: func(ctx EnvironmentContext) []string {
		return []string{"PYTHONPATH=" + ctx.RootDirectory}
	},
	LanguageCSharp: func(ctx EnvironmentContext) []string {
		return []string{fmt.Sprintf("ASPNETCORE_URLS=http://localhost:%d", ctx.Port)}
	},
	LanguageHTML:    nil,
	LanguageGeneric: nil,
}

// PortPlaceholder is replaced by the chosen port in command templates
const PortPlaceholder = "{port}"

// Command is an argv template. In YAML it may be a sequence or a whitespace-separated string.
type Command []string

func (c *Command) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*c = strings.Fields(node.Value)
		return nil
	case yaml.SequenceNode:
		var argv []string
		if err := node.Decode(&argv); err != nil {
			return err
		}
		*c = argv
		return nil
	}
	return fmt.Errorf("line %d: command must be a string or a list", node.Line)
}

// Expand substitutes the port placeholder in every argument
func (c Command) Expand(port int) []string {
	argv := make([]string, len(c))
	for i, arg := range c {
		argv[i] = strings.ReplaceAll(arg, PortPlaceholder, strconv.Itoa(port))
	}
	return argv
}

func (c Command) String() string {
	return strings.Join(c, " ")
}

// ServiceDefinition describes how to launch one service
type ServiceDefinition struct {
	Name            string   `yaml:"-"`
	Kind            Kind     `yaml:"kind"`
	Language        Language `yaml:"language"`
	Path            string   `yaml:"path"`
	StartCommand    Command  `yaml:"start_command"`
	DefaultPort     int      `yaml:"default_port"`
	HealthCheckPath string   `yaml:"health_check_path"`

	// Optional dependency preparation run before the service starts,
	// only when PrepareWhenExists (relative to the working directory) exists
	PrepareCommand    Command `yaml:"prepare_command,omitempty"`
	PrepareWhenExists string  `yaml:"prepare_when_exists,omitempty"`
}

// Environment returns the variables a child of this service receives on top of the parent environment
func (d ServiceDefinition) Environment(ctx EnvironmentContext) []string {
	env := []string{fmt.Sprintf("PORT=%d", ctx.Port)}
	if contribute := languageEnvironment[d.Language]; contribute != nil {
		env = append(env, contribute(ctx)...)
	}
	return env
}

// ResolvePath returns the working directory, relative paths resolve against root
func (d ServiceDefinition) ResolvePath(root string) string {
	if filepath.IsAbs(d.Path) {
		return filepath.Clean(d.Path)
	}
	return filepath.Join(root, filepath.FromSlash(d.Path))
}
