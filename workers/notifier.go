package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"camly-reward-system/config"
	"camly-reward-system/utils"
)

// SideEffectKind routes a payload to the right collaborator service.
type SideEffectKind string

const (
	EffectNotification SideEffectKind = "notification"
	EffectChatMessage  SideEffectKind = "chat"
	EffectFeedPost     SideEffectKind = "feed"
)

// SideEffect is one fire-and-forget delivery queued after settlement.
type SideEffect struct {
	Kind    SideEffectKind         `json:"kind"`
	UserID  string                 `json:"user_id"`
	Payload map[string]interface{} `json:"payload"`
}

// Notifier delivers post-settlement side effects through a bounded in-process
// queue. Delivery failures are logged and dropped — they must never surface
// as a claim failure or roll back a settled ledger.
type Notifier struct {
	cfg        *config.AppConfig
	queue      chan SideEffect
	workers    int
	httpClient *http.Client
}

func NewNotifier(cfg *config.AppConfig) *Notifier {
	return &Notifier{
		cfg:        cfg,
		queue:      make(chan SideEffect, 256),
		workers:    4,
		httpClient: utils.HTTPClient,
	}
}

// Start launches the delivery workers. They drain until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) {
	for i := 0; i < n.workers; i++ {
		go n.run(ctx)
	}
	utils.Sugar.Infof("🔔 Notifier started (%d workers, queue cap %d)", n.workers, cap(n.queue))
}

// Enqueue queues a side effect without blocking the caller. A full queue
// drops the effect with a log line rather than stalling settlement.
func (n *Notifier) Enqueue(effect SideEffect) {
	select {
	case n.queue <- effect:
	default:
		utils.Sugar.Warnw("side-effect queue full, dropping", "kind", effect.Kind, "user_id", effect.UserID)
	}
}

func (n *Notifier) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case effect := <-n.queue:
			if err := n.deliver(ctx, effect); err != nil {
				utils.Sugar.Warnw("side-effect delivery failed",
					"kind", effect.Kind, "user_id", effect.UserID, "error", err)
			}
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, effect SideEffect) error {
	var baseURL string
	switch effect.Kind {
	case EffectNotification:
		baseURL = n.cfg.NotifyServiceURL
	case EffectChatMessage:
		baseURL = n.cfg.ChatServiceURL
	case EffectFeedPost:
		baseURL = n.cfg.FeedServiceURL
	}
	if baseURL == "" {
		return nil // sink not configured in this environment
	}

	body, err := json.Marshal(map[string]interface{}{
		"user_id": effect.UserID,
		"payload": effect.Payload,
	})
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, "POST", baseURL+"/api/v1/internal/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", n.cfg.ServiceToken)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		utils.Sugar.Warnw("side-effect sink rejected event",
			"kind", effect.Kind, "status", resp.StatusCode, "body", string(snippet))
	}
	return nil
}
