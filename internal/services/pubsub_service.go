package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"heartline/internal/models"
)

// QuotaEventsChannel carries balance changes between server instances
const QuotaEventsChannel = "heartline:quota:events"

// BalanceNotifier pushes a new balance to the identity's open websocket sessions
type BalanceNotifier interface {
	NotifyBalance(ctx context.Context, key string, balance int)
}

// LocalNotifier delivers to the connections held by this process only
type LocalNotifier struct {
	connManager *ConnectionManager
}

// NewLocalNotifier creates a notifier over a connection manager
func NewLocalNotifier(connManager *ConnectionManager) *LocalNotifier {
	return &LocalNotifier{connManager: connManager}
}

// NotifyBalance sends a quota_update to every local session of key
func (n *LocalNotifier) NotifyBalance(_ context.Context, key string, balance int) {
	if n == nil || n.connManager == nil {
		return
	}
	for _, conn := range n.connManager.ForIdentity(key) {
		b := balance
		if !conn.SafeSend(models.ServerMessage{Type: "quota_update", RemainingQuota: &b}) {
			log.Printf("⚠️ [WS] quota_update dropped for %s: queue closed or full", conn.ConnID)
		}
	}
}

// QuotaEvent is one balance change published through Redis
type QuotaEvent struct {
	Key        string `json:"key"`
	Balance    int    `json:"balance"`
	InstanceID string `json:"instanceId"`
}

// PubSubService fans balance changes out through Redis so a credit applied on one
// instance reaches sessions connected to another
type PubSubService struct {
	client     *redis.Client
	local      *LocalNotifier
	instanceID string
	pubsub     *redis.PubSub
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewPubSubService creates a new pub/sub service
func NewPubSubService(client *redis.Client, local *LocalNotifier, instanceID string) *PubSubService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PubSubService{
		client:     client,
		local:      local,
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the quota channel and begins delivering remote events
func (s *PubSubService) Start() error {
	s.pubsub = s.client.Subscribe(s.ctx, QuotaEventsChannel)

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		return err
	}

	go s.processMessages()

	log.Printf("✅ [PUBSUB] Listening on %s (instance: %s)", QuotaEventsChannel, s.instanceID)
	return nil
}

func (s *PubSubService) processMessages() {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handlePayload(msg.Payload)
		}
	}
}

// handlePayload delivers one published event locally. Events from this instance were
// already delivered when they were published.
func (s *PubSubService) handlePayload(payload string) {
	var event QuotaEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to unmarshal quota event: %v", err)
		return
	}
	if event.InstanceID == s.instanceID || event.Key == "" {
		return
	}
	s.local.NotifyBalance(s.ctx, event.Key, event.Balance)
}

// NotifyBalance delivers locally and publishes for the other instances
func (s *PubSubService) NotifyBalance(ctx context.Context, key string, balance int) {
	s.local.NotifyBalance(ctx, key, balance)

	data, err := json.Marshal(QuotaEvent{Key: key, Balance: balance, InstanceID: s.instanceID})
	if err != nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.client.Publish(pubCtx, QuotaEventsChannel, data).Err(); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to publish quota event: %v", err)
	}
}

// Stop stops the pub/sub service
func (s *PubSubService) Stop() error {
	s.cancel()
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}
