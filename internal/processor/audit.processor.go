package processor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/internal/queue"
	"github.com/nimasrn/school-payment/pkg/logger"
	"github.com/nimasrn/school-payment/pkg/prom"
)

type AuditLogRepository interface {
	Create(ctx context.Context, l *model.AuditLog) (*model.AuditLog, error)
}

// AuditProcessor writes one audit log row per settlement event.
type AuditProcessor struct {
	repo        AuditLogRepository
	idempotency *IdempotencyService
}

func NewAuditProcessor(repo AuditLogRepository, idempotency *IdempotencyService) *AuditProcessor {
	return &AuditProcessor{
		repo:        repo,
		idempotency: idempotency,
	}
}

func (p *AuditProcessor) GetType() string {
	return "settlement-audit"
}

// Process returns nil for messages that must not be delivered again, including
// ones that can never succeed.
func (p *AuditProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var evt model.SettlementEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil || evt.OrderID == "" {
		logger.Error("Dropping unreadable settlement event", "message_id", msg.ID, "error", err)
		prom.IncEventProcessed("unknown", "invalid")
		return nil
	}

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, msg.ID)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Info("Settlement event already recorded", "message_id", msg.ID, "order_id", evt.OrderID)
		prom.IncEventProcessed(string(evt.Type), "duplicate")
		return nil
	case errors.Is(err, ErrMaxRetriesExceeded):
		logger.Error("Giving up on settlement event", "message_id", msg.ID, "order_id", evt.OrderID, "error", err)
		prom.IncEventProcessed(string(evt.Type), "dropped")
		return nil
	case err != nil:
		return err
	}
	defer func() {
		_ = p.idempotency.ReleaseLock(context.WithoutCancel(ctx), procCtx)
	}()

	_, err = p.repo.Create(ctx, &model.AuditLog{
		Action:     string(evt.Type),
		EntityType: "transaction",
		EntityID:   evt.OrderID,
		Payload:    json.RawMessage(msg.Data),
	})
	if err != nil {
		_ = p.idempotency.MarkFailure(context.WithoutCancel(ctx), procCtx, err)
		prom.IncEventProcessed(string(evt.Type), "failed")
		return err
	}

	if err := p.idempotency.MarkSuccess(context.WithoutCancel(ctx), procCtx); err != nil {
		logger.Error("Failed to mark settlement event processed", "message_id", msg.ID, "error", err)
	}
	prom.IncEventProcessed(string(evt.Type), "ok")
	logger.Info("Settlement event recorded",
		"message_id", msg.ID,
		"type", evt.Type,
		"order_id", evt.OrderID,
		"credited", evt.Credited,
		"retry", procCtx.IsRetry())
	return nil
}
