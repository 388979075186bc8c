package startup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/light-controller/internal/config"
)

func TestInstallService(t *testing.T) {
	svc := config.ServiceConfig{
		UnitPath:   filepath.Join(t.TempDir(), "systemd", "light-controller.service"),
		User:       "lights",
		WorkingDir: "/opt/light-controller",
		ExecStart:  "/opt/light-controller/light-controller -config-file config.yaml",
	}

	require.NoError(t, InstallService(svc))

	contents, err := os.ReadFile(svc.UnitPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "User=lights\n")
	assert.Contains(t, string(contents), "WorkingDirectory=/opt/light-controller\n")
	assert.Contains(t, string(contents), "ExecStart=/opt/light-controller/light-controller -config-file config.yaml\n")
}

func TestUnitContents_NoUser(t *testing.T) {
	unit := UnitContents(config.ServiceConfig{WorkingDir: "/srv", ExecStart: "/srv/light-controller"})

	assert.NotContains(t, unit, "User=")
	assert.Contains(t, unit, "WorkingDirectory=/srv\n")
}
