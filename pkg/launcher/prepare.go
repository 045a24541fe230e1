package launcher

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
)

// prepare runs the optional dependency preparation step. Failures are logged only:
// the launch itself reports whether the service can run.
func (l *Launcher) prepare(ctx context.Context, definition catalog.ServiceDefinition, workDir string, environment []string) {
	if len(definition.PrepareCommand) == 0 {
		return
	}
	if definition.PrepareWhenExists != "" {
		marker := filepath.Join(workDir, definition.PrepareWhenExists)
		if _, err := os.Stat(marker); err != nil {
			l.logger.Debugf("Skipping preparation, service: %s, missing: %s", definition.Name, marker)
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, l.config.PrepareTimeout)
	defer cancel()

	argv := definition.PrepareCommand
	l.logger.Infof("Preparing service, service: %s, command: %s", definition.Name, argv.String())

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), environment...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		l.logger.Warnf("Preparation failed, continuing, service: %s, error: %v, output: %s",
			definition.Name, err, lastLines(string(output), 5))
		return
	}
	l.logger.Infof("Preparation done, service: %s", definition.Name)
}

func lastLines(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
