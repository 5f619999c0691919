package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client used by KafkaLedger
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaLedger appends attack records to a Kafka topic. The transaction id is
// topic/partition/offset of the produced record. Submissions are serialized
// so a record is produced at most once per process.
type KafkaLedger struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	accepted atomic.Int64

	mu   sync.Mutex
	seen *dedup
}

// NewKafkaClient creates a producer-only franz-go client
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return cl, nil
}

// NewKafkaLedger creates a ledger producing to topic
func NewKafkaLedger(producer Producer, topic string, logger *slog.Logger) *KafkaLedger {
	return &KafkaLedger{
		producer: producer,
		topic:    topic,
		logger:   logger,
		seen:     newDedup(dedupCapacity),
	}
}

// Backend implements Sink
func (k *KafkaLedger) Backend() string {
	return "kafka"
}

// RecordAttack implements Sink
func (k *KafkaLedger) RecordAttack(ctx context.Context, rec AttackRecord) (string, error) {
	key := rec.Key()

	k.mu.Lock()
	defer k.mu.Unlock()

	if tx, ok := k.seen.get(key); ok {
		return tx, nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("%w: marshal: %v", models.ErrLedgerSubmit, err)
	}

	record := &kgo.Record{
		Topic:     k.topic,
		Key:       []byte(key),
		Value:     data,
		Timestamp: time.Now(),
	}

	produced, err := k.producer.ProduceSync(ctx, record).First()
	if err != nil {
		return "", fmt.Errorf("%w: kafka produce: %v", models.ErrLedgerSubmit, err)
	}

	tx := fmt.Sprintf("%s/%d/%d", produced.Topic, produced.Partition, produced.Offset)
	k.accepted.Add(1)
	k.seen.put(key, tx)

	k.logger.Debug("attack record produced", slog.String("tx_id", tx))
	return tx, nil
}

// AttackCount implements Sink. It counts records accepted by this process
// since it started, not the contents of the topic.
func (k *KafkaLedger) AttackCount(ctx context.Context) (int64, error) {
	return k.accepted.Load(), nil
}

// CountScope implements Scoped
func (k *KafkaLedger) CountScope() string {
	return ScopeProcess
}
