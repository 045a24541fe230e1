package catalog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// MockLogger for testing
type MockLogger struct{}

func (m *MockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *MockLogger) Debugf(format string, args ...interface{})               {}
func (m *MockLogger) Infof(format string, args ...interface{})                {}
func (m *MockLogger) Warnf(format string, args ...interface{})                {}
func (m *MockLogger) Errorf(format string, args ...interface{})               {}

func validDefinition(name string, port int) ServiceDefinition {
	return ServiceDefinition{
		Name:            name,
		Kind:            KindBackend,
		Language:        LanguageGeneric,
		Path:            "svc/" + name,
		StartCommand:    Command{"server", "--port", PortPlaceholder},
		DefaultPort:     port,
		HealthCheckPath: "/health",
	}
}

// ===== DEFAULT CATALOG =====

func TestDefault_CoversKnownServices(t *testing.T) {
	catalog := Default()

	assert.Equal(t, 7, catalog.Len())
	assert.Equal(t, []int{5000, 5001, 5002, 8000, 8001, 8002, 8080}, catalog.DefaultPorts())

	docs, ok := catalog.Lookup("documentation_portal")
	require.True(t, ok)
	assert.Equal(t, KindFrontend, docs.Kind)
	assert.Equal(t, LanguageHTML, docs.Language)
	assert.Equal(t, []string{"python", "-m", "http.server", "8080"}, docs.StartCommand.Expand(8080))

	backends := 0
	for _, definition := range catalog.Services() {
		if definition.Kind == KindBackend {
			backends++
		}
	}
	assert.Equal(t, 6, backends)
}

func TestServices_SortedByName(t *testing.T) {
	catalog, err := New(validDefinition("zeta", 9001), validDefinition("alpha", 9002))
	require.NoError(t, err)

	services := catalog.Services()
	require.Len(t, services, 2)
	assert.Equal(t, "alpha", services[0].Name)
	assert.Equal(t, "zeta", services[1].Name)
}

// ===== VALIDATION =====

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServiceDefinition)
	}{
		{"empty name", func(d *ServiceDefinition) { d.Name = "" }},
		{"unknown kind", func(d *ServiceDefinition) { d.Kind = "sidecar" }},
		{"unknown language", func(d *ServiceDefinition) { d.Language = "cobol" }},
		{"empty path", func(d *ServiceDefinition) { d.Path = "" }},
		{"empty command", func(d *ServiceDefinition) { d.StartCommand = nil }},
		{"port zero", func(d *ServiceDefinition) { d.DefaultPort = 0 }},
		{"port too large", func(d *ServiceDefinition) { d.DefaultPort = 70000 }},
		{"relative health path", func(d *ServiceDefinition) { d.HealthCheckPath = "health" }},
		{"prepare condition without command", func(d *ServiceDefinition) { d.PrepareWhenExists = "requirements.txt" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			definition := validDefinition("svc", 9000)
			tt.mutate(&definition)

			err := Validate([]ServiceDefinition{definition})
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestValidate_RejectsOverlappingPortsAndNames(t *testing.T) {
	err := Validate([]ServiceDefinition{validDefinition("a", 9000), validDefinition("b", 9000)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default port 9000")

	err = Validate([]ServiceDefinition{validDefinition("a", 9000), validDefinition("a", 9001)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate service name")

	assert.Error(t, Validate(nil))
}

func TestNew_DefaultsHealthPath(t *testing.T) {
	definition := validDefinition("svc", 9000)
	definition.HealthCheckPath = ""

	catalog, err := New(definition)
	require.NoError(t, err)

	got, _ := catalog.Lookup("svc")
	assert.Equal(t, "/", got.HealthCheckPath)
}

// ===== PERSISTENCE =====

func TestLoad_MissingFileWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "service_config.yaml")

	catalog, err := Load(path, &MockLogger{})
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), catalog.Len())
	require.FileExists(t, path)

	reloaded, err := Load(path, &MockLogger{})
	require.NoError(t, err)
	assert.Equal(t, catalog.Services(), reloaded.Services())
}

func TestParse_StringAndListCommands(t *testing.T) {
	document := `
docA:
  kind: backend
  language: generic
  path: /srv/docA
  start_command: ./echo-server --listen :{port}
  default_port: 9100
  health_check_path: /health
docs:
  kind: frontend
  language: html
  path: Docs
  start_command: ["python", "-m", "http.server", "{port}"]
  default_port: 8080
`
	catalog, err := Parse([]byte(document))
	require.NoError(t, err)

	docA, ok := catalog.Lookup("docA")
	require.True(t, ok)
	assert.Equal(t, "docA", docA.Name)
	assert.Equal(t, []string{"./echo-server", "--listen", ":9100"}, docA.StartCommand.Expand(9100))

	docs, ok := catalog.Lookup("docs")
	require.True(t, ok)
	assert.Equal(t, "/", docs.HealthCheckPath)
	assert.Equal(t, []string{"python", "-m", "http.server", "8081"}, docs.StartCommand.Expand(8081))
}

func TestParse_NormalizesKindAndLanguage(t *testing.T) {
	document := `
docA:
  kind: Backend
  language: Python
  path: docA
  start_command: python app.py
  default_port: 9100
`
	catalog, err := Parse([]byte(document))
	require.NoError(t, err)

	docA, ok := catalog.Lookup("docA")
	require.True(t, ok)
	assert.Equal(t, KindBackend, docA.Kind)
	assert.Equal(t, LanguagePython, docA.Language)
	assert.Contains(t, docA.Environment(EnvironmentContext{RootDirectory: "/srv", Port: 9100}), "PYTHONPATH=/srv")
}

func TestLoad_InvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("docA:\n  kind: sidecar\n"), 0644))

	_, err := Load(path, &MockLogger{})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestCommand_RejectsMapping(t *testing.T) {
	_, err := Parse([]byte("docA:\n  start_command: {a: b}\n"))
	assert.Error(t, err)
}

// ===== ENVIRONMENT =====

func TestEnvironment_PerLanguage(t *testing.T) {
	ctx := EnvironmentContext{RootDirectory: "/work", WorkingDirectory: "/work/svc", Port: 5001}

	tests := []struct {
		language Language
		expected []string
	}{
		{LanguagePython, []string{"PORT=5001", "PYTHONPATH=/work"}},
		{LanguageCSharp, []string{"PORT=5001", "ASPNETCORE_URLS=http://localhost:5001"}},
		{LanguageHTML, []string{"PORT=5001"}},
		{LanguageGeneric, []string{"PORT=5001"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.language), func(t *testing.T) {
			definition := ServiceDefinition{Language: tt.language}
			assert.Equal(t, tt.expected, definition.Environment(ctx))
		})
	}
}

func TestEnvironment_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		language := rapid.SampledFrom([]Language{LanguagePython, LanguageCSharp, LanguageHTML, LanguageGeneric}).Draw(t, "language")

		env := ServiceDefinition{Language: language}.Environment(EnvironmentContext{RootDirectory: "/root", Port: port})

		if env[0] != "PORT="+strconv.Itoa(port) {
			t.Fatalf("first entry must be PORT, got %q", env[0])
		}
		for _, entry := range env {
			if !strings.Contains(entry, "=") {
				t.Fatalf("malformed entry %q", entry)
			}
		}
	})
}

func TestCommandExpand_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		argv := rapid.SliceOfN(rapid.SampledFrom([]string{"run", PortPlaceholder, "--port=" + PortPlaceholder, "x"}), 1, 6).Draw(t, "argv")
		port := rapid.IntRange(1, 65535).Draw(t, "port")

		expanded := Command(argv).Expand(port)

		if len(expanded) != len(argv) {
			t.Fatalf("length changed: %d != %d", len(expanded), len(argv))
		}
		for i, arg := range expanded {
			if strings.Contains(arg, PortPlaceholder) {
				t.Fatalf("placeholder left in %q", arg)
			}
			if strings.Contains(argv[i], PortPlaceholder) && !strings.Contains(arg, strconv.Itoa(port)) {
				t.Fatalf("port missing in %q", arg)
			}
		}
	})
}

func TestParseKindAndLanguage(t *testing.T) {
	kind, err := ParseKind(" Backend ")
	require.NoError(t, err)
	assert.Equal(t, KindBackend, kind)

	_, err = ParseKind("database")
	assert.Error(t, err)

	language, err := ParseLanguage("CSharp")
	require.NoError(t, err)
	assert.Equal(t, LanguageCSharp, language)

	_, err = ParseLanguage("rust")
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/work", "python", "Textract"), ServiceDefinition{Path: "python/Textract"}.ResolvePath("/work"))
	assert.Equal(t, "/abs/svc", ServiceDefinition{Path: "/abs/svc/"}.ResolvePath("/work"))
}
