package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"miniapp-games/internal/models"
)

type EventPublisher interface {
	PublishRoundSettled(ctx context.Context, event models.RoundSettledEvent) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger.With(zap.String("component", "events"), zap.String("topic", topic)),
	}
}

// PublishRoundSettled keys messages by user so one player's rounds stay ordered within a partition.
func (p *KafkaPublisher) PublishRoundSettled(ctx context.Context, event models.RoundSettledEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal round event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish round event", zap.String("round_id", event.RoundID), zap.Error(err))
		return err
	}

	p.logger.Debug("published round event", zap.String("round_id", event.RoundID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NoopPublisher struct{}

func (NoopPublisher) PublishRoundSettled(context.Context, models.RoundSettledEvent) error { return nil }
func (NoopPublisher) Close() error                                                        { return nil }

func newRoundSettledEvent(round *models.Round, balance float64) models.RoundSettledEvent {
	event := models.RoundSettledEvent{
		RoundID:      round.ID,
		UserID:       round.UserID,
		GameID:       round.GameID,
		BetAmount:    round.BetAmount,
		Threshold:    round.Threshold,
		Direction:    round.Direction,
		OutcomeValue: round.OutcomeValue,
		IsWin:        round.IsWin,
		Payout:       round.Payout,
		Balance:      balance,
		SettledAt:    time.Now().UnixMilli(),
	}
	if round.Proof != nil {
		event.ServerSeedHash = round.Proof.ServerSeedHash
		event.Nonce = round.Proof.Nonce
	}
	return event
}
