package env

import (
	"github.com/thatsimonsguy/light-controller/internal/config"
)

// Cfg is set once at startup and read by the metrics and notification clients.
var Cfg *config.Config
