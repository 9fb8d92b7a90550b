package storage

import (
	"context"
	"time"

	"github.com/dgellow/identity-bot/internal/log"
)

// Pruner is implemented by stores that cannot expire entries on their own
type Pruner interface {
	PruneIdle(ctx context.Context, maxIdle time.Duration) (int, error)
}

// CleanupManager periodically drops sessions idle for longer than maxIdle
type CleanupManager struct {
	pruner   Pruner
	interval time.Duration
	maxIdle  time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(pruner Pruner, interval, maxIdle time.Duration) *CleanupManager {
	return &CleanupManager{
		pruner:   pruner,
		interval: interval,
		maxIdle:  maxIdle,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting session cleanup manager", map[string]any{
		"interval": cm.interval.String(),
		"maxIdle":  cm.maxIdle.String(),
	})

	go cm.run(ctx)
}

// Stop stops the loop and waits for it to exit
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan
	log.Logf("Session cleanup manager stopped")
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.pruner.PruneIdle(ctx, cm.maxIdle)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to prune idle sessions", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Pruned idle sessions", map[string]any{
			"count": count,
		})
	}
}
