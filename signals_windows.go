// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

//go:build windows

package main

import (
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/logger"
)

// setupDebugSignalHandlers is a no-op on Windows as SIGUSR1/SIGUSR2 don't exist
// On Windows, debug information can be accessed via:
// - The localhost metrics endpoints
// - Log file analysis
func setupDebugSignalHandlers(_ *App) {
	logger.Debug().Msg("Debug signal handlers not available on Windows")
}
