package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/match-lifecycle/internal/config"
	"github.com/match-lifecycle/internal/domain"
)

// CommandHandler applies queue commands
type CommandHandler interface {
	ApplyCommands(ctx context.Context, commands []domain.QueueCommand) int
}

// Trigger asks for a matchmaking sweep
type Trigger interface {
	Trigger()
}

// Consumer consumes queue commands from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       CommandHandler
	trigger       Trigger
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer. trigger may be nil.
func NewConsumer(cfg *config.KafkaConfig, handler CommandHandler, trigger Trigger, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		trigger:       trigger,
		logger:        logger.With("component", "kafka_consumer"),
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.CommandsTopic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.CommandsTopic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// commandBatch accumulates decoded commands until it is flushed
type commandBatch struct {
	handler  CommandHandler
	trigger  Trigger
	logger   *slog.Logger
	commands []domain.QueueCommand
}

func newCommandBatch(handler CommandHandler, trigger Trigger, logger *slog.Logger, size int) *commandBatch {
	return &commandBatch{
		handler:  handler,
		trigger:  trigger,
		logger:   logger,
		commands: make([]domain.QueueCommand, 0, size),
	}
}

// add decodes a message into the batch. Malformed messages are dropped.
func (b *commandBatch) add(message *sarama.ConsumerMessage) {
	var cmd domain.QueueCommand
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		b.logger.Warn("failed to unmarshal message",
			"error", err,
			"offset", message.Offset,
			"partition", message.Partition,
		)
		return
	}

	// Validate command
	if cmd.PlayerID == "" || (cmd.Type != domain.QueueCommandJoin && cmd.Type != domain.QueueCommandLeave) {
		b.logger.Warn("invalid queue command",
			"type", cmd.Type,
			"player_id", cmd.PlayerID,
			"offset", message.Offset,
		)
		return
	}
	b.commands = append(b.commands, cmd)
}

func (b *commandBatch) len() int {
	return len(b.commands)
}

// flush applies the pending commands and asks for one sweep if any took effect
func (b *commandBatch) flush() {
	if len(b.commands) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	applied := b.handler.ApplyCommands(ctx, b.commands)
	b.logger.Debug("processed batch", "batch_size", len(b.commands), "applied", applied)
	if applied > 0 && b.trigger != nil {
		b.trigger.Trigger()
	}
	b.commands = b.commands[:0]
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := newCommandBatch(h.consumer.handler, h.consumer.trigger, h.consumer.logger, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	for {
		select {
		case <-session.Context().Done():
			// Process remaining batch before exit
			batch.flush()
			return nil

		case <-batchTimer.C:
			batch.flush()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				batch.flush()
				return nil
			}

			batch.add(message)
			session.MarkMessage(message, "")

			if batch.len() >= cfg.BatchSize {
				batch.flush()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
