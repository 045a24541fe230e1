package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Catalog is an immutable set of service definitions
type Catalog struct {
	services map[string]ServiceDefinition
	names    []string
}

// New validates the definitions and builds a catalog
func New(definitions ...ServiceDefinition) (*Catalog, error) {
	if err := Validate(definitions); err != nil {
		return nil, err
	}

	c := &Catalog{
		services: make(map[string]ServiceDefinition, len(definitions)),
		names:    make([]string, 0, len(definitions)),
	}
	for _, definition := range definitions {
		// Validate accepted both, so the parse cannot fail here
		definition.Kind, _ = ParseKind(string(definition.Kind))
		definition.Language, _ = ParseLanguage(string(definition.Language))
		if definition.HealthCheckPath == "" {
			definition.HealthCheckPath = "/"
		}
		c.services[definition.Name] = definition
		c.names = append(c.names, definition.Name)
	}
	sort.Strings(c.names)

	return c, nil
}

// Lookup returns the definition of a service
func (c *Catalog) Lookup(name string) (ServiceDefinition, bool) {
	definition, ok := c.services[name]
	return definition, ok
}

// Services returns all definitions sorted by name
func (c *Catalog) Services() []ServiceDefinition {
	result := make([]ServiceDefinition, 0, len(c.names))
	for _, name := range c.names {
		result = append(result, c.services[name])
	}
	return result
}

// DefaultPorts returns the default port of every service, ascending
func (c *Catalog) DefaultPorts() []int {
	ports := make([]int, 0, len(c.names))
	for _, name := range c.names {
		ports = append(ports, c.services[name].DefaultPort)
	}
	sort.Ints(ports)
	return ports
}

func (c *Catalog) Len() int {
	return len(c.names)
}

// Validate checks the definitions independently of any filesystem state
func Validate(definitions []ServiceDefinition) error {
	if len(definitions) == 0 {
		return errors.NewValidationError("catalog contains no services", nil)
	}

	names := make(map[string]bool, len(definitions))
	ports := make(map[int]string, len(definitions))

	for _, definition := range definitions {
		if strings.TrimSpace(definition.Name) == "" {
			return errors.NewValidationError("service name is required", nil)
		}
		if names[definition.Name] {
			return errors.NewValidationError("duplicate service name: "+definition.Name, nil)
		}
		names[definition.Name] = true

		if _, err := ParseKind(string(definition.Kind)); err != nil {
			return errors.NewValidationError("invalid kind", err).WithContext("service", definition.Name)
		}
		if _, err := ParseLanguage(string(definition.Language)); err != nil {
			return errors.NewValidationError("invalid language", err).WithContext("service", definition.Name)
		}
		if strings.TrimSpace(definition.Path) == "" {
			return errors.NewValidationError("path is required", nil).WithContext("service", definition.Name)
		}
		if len(definition.StartCommand) == 0 {
			return errors.NewValidationError("start command is required", nil).WithContext("service", definition.Name)
		}
		if definition.DefaultPort < 1 || definition.DefaultPort > 65535 {
			return errors.NewValidationError(fmt.Sprintf("default port out of range: %d", definition.DefaultPort), nil).
				WithContext("service", definition.Name)
		}
		if other, exists := ports[definition.DefaultPort]; exists {
			return errors.NewValidationError(fmt.Sprintf("default port %d used by both '%s' and '%s'", definition.DefaultPort, other, definition.Name), nil)
		}
		ports[definition.DefaultPort] = definition.Name

		if definition.HealthCheckPath != "" && !strings.HasPrefix(definition.HealthCheckPath, "/") {
			return errors.NewValidationError("health check path must start with '/'", nil).WithContext("service", definition.Name)
		}
		if definition.PrepareWhenExists != "" && len(definition.PrepareCommand) == 0 {
			return errors.NewValidationError("prepare_when_exists set without prepare_command", nil).WithContext("service", definition.Name)
		}
	}

	return nil
}

// Load reads the catalog document. A missing document is replaced by the
// default catalog, which is written to path so later runs see the same set.
func Load(path string, logger logging.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Infof("Catalog file not found, writing default catalog, path: %s", path)
		catalog := Default()
		if err := Save(path, catalog); err != nil {
			return nil, err
		}
		return catalog, nil
	}
	if err != nil {
		return nil, errors.NewIOError("failed to read catalog file", err).WithContext("path", path)
	}

	catalog, err := Parse(data)
	if err != nil {
		return nil, errors.NewValidationError("invalid catalog file", err).WithContext("path", path)
	}

	logger.Debugf("Catalog loaded, path: %s, services: %d", path, catalog.Len())
	return catalog, nil
}

// Parse decodes a YAML document mapping service names to definitions
func Parse(data []byte) (*Catalog, error) {
	var document map[string]ServiceDefinition
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, err
	}

	definitions := make([]ServiceDefinition, 0, len(document))
	for name, definition := range document {
		definition.Name = name
		definitions = append(definitions, definition)
	}

	return New(definitions...)
}

// Save writes the catalog atomically
func Save(path string, catalog *Catalog) error {
	data, err := Marshal(catalog)
	if err != nil {
		return errors.NewInternalError("failed to encode catalog", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewIOError("failed to create catalog directory", err).WithContext("path", path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.NewIOError("failed to write catalog file", err).WithContext("path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.NewIOError("failed to replace catalog file", err).WithContext("path", path)
	}
	return nil
}

// Marshal encodes the catalog as YAML
func Marshal(catalog *Catalog) ([]byte, error) {
	document := make(map[string]ServiceDefinition, catalog.Len())
	for _, definition := range catalog.Services() {
		document[definition.Name] = definition
	}
	return yaml.Marshal(document)
}
