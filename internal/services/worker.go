package services

import (
	"context"
	"sync"

	"github.com/sweeply/sweeply/internal/logger"
	"github.com/sweeply/sweeply/internal/matching"
)

// LaunchMonitor runs the arrival monitor's sweep loop until the context is
// cancelled. Start it as a goroutine after wg.Add(1); the waitgroup is
// released when the loop exits.
func LaunchMonitor(ctx context.Context, wg *sync.WaitGroup, monitor *matching.Monitor) {
	defer wg.Done()

	logger.Info("Arrival monitor worker started")
	monitor.Run(ctx)
}
