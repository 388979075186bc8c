package startup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/thatsimonsguy/light-controller/internal/config"
)

// UnitContents renders the systemd unit for the controller service.
func UnitContents(svc config.ServiceConfig) string {
	user := ""
	if svc.User != "" {
		user = fmt.Sprintf("User=%s\n", svc.User)
	}

	return fmt.Sprintf(`[Unit]
Description=Lighting controller
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
%sWorkingDirectory=%s
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, user, svc.WorkingDir, svc.ExecStart)
}

func InstallService(svc config.ServiceConfig) error {
	if err := os.MkdirAll(filepath.Dir(svc.UnitPath), 0755); err != nil {
		return fmt.Errorf("create unit directory: %w", err)
	}
	return os.WriteFile(svc.UnitPath, []byte(UnitContents(svc)), 0644)
}
