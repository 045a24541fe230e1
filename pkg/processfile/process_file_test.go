package processfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ProcessFileMockLogger is a simple mock implementation of Logger for testing
type ProcessFileMockLogger struct{}

func (m *ProcessFileMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *ProcessFileMockLogger) Debugf(format string, args ...interface{})               {}
func (m *ProcessFileMockLogger) Infof(format string, args ...interface{})                {}
func (m *ProcessFileMockLogger) Warnf(format string, args ...interface{})                {}
func (m *ProcessFileMockLogger) Errorf(format string, args ...interface{})               {}

func TestNewLayout_WithDefaults(t *testing.T) {
	layout := NewLayout(LayoutConfig{}, &ProcessFileMockLogger{})

	assert.Equal(t, DefaultAppName, layout.config.AppName)
	assert.Equal(t, UserService, layout.config.ServiceContext)
	assert.Equal(t, DefaultAppName, filepath.Base(layout.StateDirectory()))
}

func TestLayout_ExplicitBaseDirectory(t *testing.T) {
	base := t.TempDir()
	layout := NewLayout(LayoutConfig{BaseDirectory: base}, &ProcessFileMockLogger{})

	assert.Equal(t, base, layout.StateDirectory())
	assert.Equal(t, filepath.Join(base, DefaultRegistryFileName), layout.RegistryFilePath())
	assert.Equal(t, filepath.Join(base, DefaultRegistryFileName)+".lock", layout.RegistryLockFilePath())
	assert.Equal(t, filepath.Join(base, DefaultCatalogFileName), layout.CatalogFilePath())
	assert.Equal(t, filepath.Join(base, "logs", "python_textract_8001.log"), layout.InstanceLogFilePath("python_textract", 8001))
}

func TestLayout_FileOverrides(t *testing.T) {
	base := t.TempDir()
	absCatalog := filepath.Join(t.TempDir(), "catalog.yaml")

	tests := []struct {
		name         string
		config       LayoutConfig
		wantRegistry string
		wantCatalog  string
	}{
		{
			name:         "relative paths resolve against state directory",
			config:       LayoutConfig{BaseDirectory: base, RegistryFile: "reg.json", CatalogFile: "cat.yaml"},
			wantRegistry: filepath.Join(base, "reg.json"),
			wantCatalog:  filepath.Join(base, "cat.yaml"),
		},
		{
			name:         "absolute paths are kept",
			config:       LayoutConfig{BaseDirectory: base, CatalogFile: absCatalog},
			wantRegistry: filepath.Join(base, DefaultRegistryFileName),
			wantCatalog:  absCatalog,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := NewLayout(tt.config, &ProcessFileMockLogger{})
			assert.Equal(t, tt.wantRegistry, layout.RegistryFilePath())
			assert.Equal(t, tt.wantCatalog, layout.CatalogFilePath())
		})
	}
}

func TestLayout_InstanceLogFileNameIsSanitized(t *testing.T) {
	layout := NewLayout(LayoutConfig{BaseDirectory: "/state"}, &ProcessFileMockLogger{})

	path := layout.InstanceLogFilePath("odd/name with:chars", 9000)

	assert.Equal(t, "odd_name_with_chars_9000.log", filepath.Base(path))
}

func TestLayout_UserServiceUsesXDGRuntimeDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_RUNTIME_DIR is only consulted on Linux")
	}
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	layout := NewLayout(LayoutConfig{ServiceContext: UserService, AppName: "test-app"}, &ProcessFileMockLogger{})

	assert.Equal(t, filepath.Join(runtimeDir, "test-app"), layout.StateDirectory())
}

func TestLayout_Prepare(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "state")
	layout := NewLayout(LayoutConfig{BaseDirectory: base}, &ProcessFileMockLogger{})

	require.NoError(t, layout.Prepare())

	info, err := os.Stat(layout.InstanceLogDirectoryPath())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestValidateStateDirectory(t *testing.T) {
	t.Run("existing directory", func(t *testing.T) {
		assert.NoError(t, ValidateStateDirectory(t.TempDir()))
	})

	t.Run("missing directory is created", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b")
		require.NoError(t, ValidateStateDirectory(dir))
		assert.DirExists(t, dir)
	})

	t.Run("file in place of directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		err := ValidateStateDirectory(file)
		require.Error(t, err)
		assert.True(t, errors.IsValidationError(err))
	})
}
