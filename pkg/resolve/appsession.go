package resolve

import (
	"context"
	"sync"

	"github.com/xyself/blivedm/pkg/client"
)

// AppSession owns the open platform game behind a reconnecting client.
// Every Resolve ends the previous game, starts a new one and keeps it
// alive in the background until the next Resolve or Close.
type AppSession struct {
	live *OpenLive

	mu     sync.Mutex
	gameID string
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

var _ client.Resolver = (*AppSession)(nil)

// NewAppSession wraps o.
func NewAppSession(o *OpenLive) *AppSession {
	return &AppSession{live: o}
}

// Resolve implements client.Resolver.
func (a *AppSession) Resolve(ctx context.Context, roomID int64) (*client.RoomInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.endLocked(ctx)
	info, err := a.live.Resolve(ctx, roomID)
	if err != nil {
		return nil, err
	}

	// The heartbeat outlives the resolve call but not the game.
	hbCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.gameID = info.GameID
	a.stop = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.live.KeepAlive(hbCtx, info.GameID)
	}()
	return info, nil
}

// GameID returns the current game, or "" when none is running.
func (a *AppSession) GameID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gameID
}

// Close stops the heartbeat and ends the current game.
func (a *AppSession) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endLocked(ctx)
}

func (a *AppSession) endLocked(ctx context.Context) error {
	if a.stop == nil {
		return nil
	}
	a.stop()
	a.wg.Wait()
	a.stop = nil

	gameID := a.gameID
	a.gameID = ""
	if err := a.live.End(ctx, gameID); err != nil {
		a.live.opts.logger.Warn("ending app session failed", "game_id", gameID, "error", err)
		return err
	}
	a.live.opts.logger.Info("app session ended", "game_id", gameID)
	return nil
}
