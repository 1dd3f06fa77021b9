package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"heartline/internal/emotion"
	"heartline/internal/logging"
	"heartline/internal/models"
	"heartline/internal/personality"
	"heartline/internal/store"
)

// PersonaProvider is the part of PersonaService the orchestrator needs
type PersonaProvider interface {
	Get(id int) (models.Persona, error)
	Settings(ctx context.Context, identityKey string, personaID int) (*models.PersonaSettings, error)
}

// ConversationConfig holds orchestration policy
type ConversationConfig struct {
	RecallLimit       int
	GenerationTimeout time.Duration
	MaxTokens         int
	Temperature       float64
	MaxMessageRunes   int
}

// ChatInput is one inbound chat message from a resolved identity
type ChatInput struct {
	Identity        models.Identity
	PersonaID       int
	Text            string
	DeclaredEmotion *models.DeclaredEmotion
}

// ChatResult is the delivered reply and the balance after the request
type ChatResult struct {
	ReplyText      string
	RemainingQuota int
	UsedFallback   bool
	Emotion        models.EmotionResult
	States         []RequestState
}

// ConversationService runs resolve-deduct-orchestrate for every identity kind.
// The ledger is only touched through QuotaLedger, so no ledger lock is held while
// waiting on the memory store or the generation backend.
type ConversationService struct {
	ledger    *QuotaLedger
	personas  PersonaProvider
	analyzer  *emotion.Analyzer
	builder   *personality.Builder
	memory    store.MemoryStore
	generator Generator
	sanitizer *ReplySanitizer
	fallback  *FallbackResponder
	turnLocks *KeyLock
	metrics   *Metrics
	cfg       ConversationConfig
	now       func() time.Time

	refundBackoff time.Duration
}

// NewConversationService wires the pipeline
func NewConversationService(
	ledger *QuotaLedger,
	personas PersonaProvider,
	analyzer *emotion.Analyzer,
	builder *personality.Builder,
	memory store.MemoryStore,
	generator Generator,
	metrics *Metrics,
	cfg ConversationConfig,
) *ConversationService {
	if cfg.RecallLimit <= 0 {
		cfg.RecallLimit = 8
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 20 * time.Second
	}
	if cfg.MaxMessageRunes <= 0 {
		cfg.MaxMessageRunes = 2000
	}
	return &ConversationService{
		ledger:    ledger,
		personas:  personas,
		analyzer:  analyzer,
		builder:   builder,
		memory:    memory,
		generator: generator,
		sanitizer: NewReplySanitizer(),
		fallback:  NewFallbackResponder(),
		turnLocks: NewKeyLock(),
		metrics:   metrics,
		cfg:       cfg,
		now:       time.Now,

		refundBackoff: 100 * time.Millisecond,
	}
}

// Handle processes one chat message. Quota and identity problems are returned as errors;
// generation and memory failures are absorbed into a successful, possibly fallback, reply.
func (s *ConversationService) Handle(ctx context.Context, in ChatInput) (*ChatResult, error) {
	start := s.now()
	requestID := uuid.New().String()
	logger := logging.WithRequest(logging.WithIdentity(in.Identity.Key, string(in.Identity.Kind)), requestID, in.PersonaID)

	if in.Identity.Key == "" {
		return nil, ErrIdentityUnresolvable
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}
	if r := []rune(text); len(r) > s.cfg.MaxMessageRunes {
		text = string(r[:s.cfg.MaxMessageRunes])
	}

	persona, err := s.personas.Get(in.PersonaID)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordChatRequest(string(in.Identity.Kind))
	lc := NewRequestLifecycle()
	step := func(next RequestState) {
		if err := lc.Advance(next); err != nil {
			logger.Error("request state machine rejected transition", "error", err)
		}
	}

	remaining, ok, err := s.ledger.TryDeduct(ctx, in.Identity.Key, 1)
	if err != nil {
		s.metrics.RecordChatError("ledger")
		return nil, err
	}
	if !ok {
		logger.Info("chat rejected: quota exhausted", "remaining", remaining)
		return nil, &QuotaExhaustedError{Key: in.Identity.Key, Requested: 1, Remaining: remaining}
	}
	step(StateDeducted)

	var detected models.EmotionResult
	if in.DeclaredEmotion != nil {
		detected = in.DeclaredEmotion.ToResult()
	} else {
		detected = s.analyzer.Analyze(text)
	}

	// Only registered identities read or write long-term memory
	registered := in.Identity.IsRegistered() && s.memory != nil
	pairKey := pairKeyFor(in.Identity.Key, in.PersonaID)

	var recent []models.ConversationTurn
	if registered {
		recent, err = s.recall(ctx, pairKey, in.Identity.Key, in.PersonaID)
		if err != nil {
			logger.Warn("memory recall failed, continuing without history", "error", err)
			recent = nil
		}
	}

	settings, err := s.personas.Settings(ctx, in.Identity.Key, in.PersonaID)
	if err != nil || settings == nil {
		if err != nil {
			logger.Warn("persona settings unavailable, using defaults", "error", err)
		}
		settings = models.DefaultPersonaSettings(in.Identity.Key, in.PersonaID)
	}

	relationship, ok := personality.ParseRelationship(settings.RelationshipLabel)
	if !ok && strings.TrimSpace(settings.RelationshipLabel) != "" {
		logger.Warn("unknown relationship label, using default", "label", settings.RelationshipLabel, "default", relationship.String())
		s.metrics.RecordUnknownSettingLabel("relationship")
	}
	style, ok := personality.ParseStyle(settings.ConversationStyle)
	if !ok && strings.TrimSpace(settings.ConversationStyle) != "" {
		logger.Warn("unknown conversation style, using default", "label", settings.ConversationStyle, "default", style.String())
		s.metrics.RecordUnknownSettingLabel("style")
	}

	interests := settings.InterestTopics
	if len(interests) == 0 {
		interests = persona.Interests
	}

	directive := s.builder.Build(personality.Input{
		Persona:           persona,
		Overrides:         settings.ActiveTraits,
		RelationshipLabel: relationship.String(),
		Style:             style.String(),
		Expressiveness:    settings.EmotionalExpressiveness,
		Interests:         interests,
		RecentMemory:      recent,
		Emotion:           &detected,
	})

	step(StateGenerating)
	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	raw, genErr := s.generator.Generate(genCtx, GenerationRequest{
		Directive:   directive,
		UserText:    text,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	cancel()

	var reply string
	usedFallback := false

	if genErr == nil {
		var substituted bool
		reply, substituted = s.sanitizer.Sanitize(raw)
		if substituted {
			logger.Info("generated reply was empty after sanitizing", "raw_length", len(raw))
		}
		step(StateDelivered)
	} else {
		step(StateFailed)
		reason := failureReason(genErr)
		s.metrics.RecordGenerationFailure(reason)
		logger.Warn("generation failed, refunding and using fallback", "reason", reason, "error", genErr)

		var refundErr error
		remaining, refundErr = s.refund(ctx, in.Identity.Key, remaining)

		reply = s.fallback.Respond(persona.Personality, persona.ID, text)
		usedFallback = true
		if refundErr != nil {
			// The lifecycle stops at failed: the reply goes out but the diamond was not returned
			logger.Error("refund after failed generation did not complete, user stays charged",
				"attempts", refundAttempts, "error", refundErr)
		} else {
			step(StateRefunded)
			step(StateFallbackDelivered)
		}
	}

	if registered {
		now := s.now().UTC()
		userTurn := models.ConversationTurn{
			ID:          uuid.New().String(),
			IdentityKey: in.Identity.Key,
			PersonaID:   in.PersonaID,
			Speaker:     models.SpeakerUser,
			Text:        text,
			Emotion:     &detected,
			Timestamp:   now,
		}
		agentTurn := models.ConversationTurn{
			ID:          uuid.New().String(),
			IdentityKey: in.Identity.Key,
			PersonaID:   in.PersonaID,
			Speaker:     models.SpeakerAgent,
			Text:        reply,
			Timestamp:   now,
		}
		if err := s.storeTurns(ctx, pairKey, userTurn, agentTurn); err != nil {
			logger.Warn("memory store failed, reply delivered without history", "error", err)
		}
	}

	elapsed := s.now().Sub(start)
	s.metrics.RecordChatLatency(elapsed.Seconds())
	logger.Info("chat delivered",
		"used_fallback", usedFallback,
		"remaining", remaining,
		"emotion", detected.PrimaryEmotion,
		"text_length", len(text),
		"reply_length", len(reply),
		"duration_ms", elapsed.Milliseconds(),
	)

	return &ChatResult{
		ReplyText:      reply,
		RemainingQuota: remaining,
		UsedFallback:   usedFallback,
		Emotion:        detected,
		States:         lc.History(),
	}, nil
}

// ClearHistory deletes the identity's turns with one persona
func (s *ConversationService) ClearHistory(ctx context.Context, identity models.Identity, personaID int) (int64, error) {
	if _, err := s.personas.Get(personaID); err != nil {
		return 0, err
	}
	if !identity.IsRegistered() || s.memory == nil {
		return 0, nil
	}

	unlock, err := s.turnLocks.Lock(ctx, pairKeyFor(identity.Key, personaID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	return s.memory.Clear(ctx, identity.Key, personaID)
}

// recall and storeTurns hold the pair's turn lock for the store call only, never across
// generation. Appends for one pair are applied one at a time, in lock order.
func (s *ConversationService) recall(ctx context.Context, pairKey, identityKey string, personaID int) ([]models.ConversationTurn, error) {
	unlock, err := s.turnLocks.Lock(ctx, pairKey)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.memory.Recall(ctx, identityKey, personaID, s.cfg.RecallLimit)
}

func (s *ConversationService) storeTurns(ctx context.Context, pairKey string, turns ...models.ConversationTurn) error {
	unlock, err := s.turnLocks.Lock(ctx, pairKey)
	if err != nil {
		return err
	}
	defer unlock()
	return s.memory.Append(ctx, turns...)
}

// refundAttempts bounds the credit retries after a failed generation
const refundAttempts = 3

// refund credits the deducted diamond back, retrying with a short backoff. It outlives a
// cancelled request context so a client disconnect cannot leave the user charged.
// fallbackRemaining is returned when every attempt failed.
func (s *ConversationService) refund(ctx context.Context, key string, fallbackRemaining int) (int, error) {
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var err error
	for attempt := 1; attempt <= refundAttempts; attempt++ {
		var remaining int
		remaining, err = s.ledger.Credit(refundCtx, key, 1)
		if err == nil {
			s.metrics.RecordRefund()
			return remaining, nil
		}
		if attempt == refundAttempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt) * s.refundBackoff)
		select {
		case <-timer.C:
		case <-refundCtx.Done():
			timer.Stop()
			s.metrics.RecordRefundFailure()
			return fallbackRemaining, fmt.Errorf("refund abandoned: %w (last error: %v)", refundCtx.Err(), err)
		}
	}

	s.metrics.RecordRefundFailure()
	return fallbackRemaining, err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func pairKeyFor(identityKey string, personaID int) string {
	return fmt.Sprintf("%s|%d", identityKey, personaID)
}
