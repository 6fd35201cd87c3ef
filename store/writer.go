// Package store upserts price tier records into DynamoDB.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AndreZiviani/s3-price-ingester/prices"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
)

const (
	// MaxBatchSize is the item limit of a single BatchWriteItem call.
	MaxBatchSize       = 25
	DefaultMaxAttempts = 5
	maxBackoff         = 5 * time.Second
)

// BatchWriteAPI is the part of the DynamoDB client the Writer needs.
type BatchWriteAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ BatchWriteAPI = (*dynamodb.Client)(nil)

// WriteError lists the ids of records that were not written. Every other
// record of the call was stored.
type WriteError struct {
	Unprocessed []string
	Cause       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%d price tiers not written [%s]: %v", len(e.Unprocessed), strings.Join(e.Unprocessed, ", "), e.Cause)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}

// Writer puts records in batches of at most MaxBatchSize items, retrying
// unprocessed items with exponential backoff up to a fixed number of calls.
type Writer struct {
	client      BatchWriteAPI
	table       string
	batchSize   int
	maxAttempts int
	backoff     retry.BackoffDelayer
	sleep       func(context.Context, time.Duration) error
}

type Option func(*Writer)

// WithBatchSize lowers the items sent per call. Values outside 1..MaxBatchSize are ignored.
func WithBatchSize(n int) Option {
	return func(w *Writer) {
		if n > 0 && n <= MaxBatchSize {
			w.batchSize = n
		}
	}
}

// WithMaxAttempts bounds the BatchWriteItem calls issued for a single batch.
func WithMaxAttempts(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithBackoff(b retry.BackoffDelayer) Option {
	return func(w *Writer) {
		w.backoff = b
	}
}

func NewWriter(client BatchWriteAPI, table string, opts ...Option) *Writer {
	w := &Writer{
		client:      client,
		table:       table,
		batchSize:   MaxBatchSize,
		maxAttempts: DefaultMaxAttempts,
		backoff:     retry.NewExponentialJitterBackoff(maxBackoff),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write upserts records and returns how many items were stored. Records sharing
// an id collapse into one item, the last one winning.
func (w *Writer) Write(ctx context.Context, records []prices.PriceTierRecord) (int, error) {
	records = dedup(records)
	if len(records) == 0 {
		return 0, nil
	}

	var (
		written     int
		unprocessed []string
		cause       error
	)
	for start := 0; start < len(records); start += w.batchSize {
		end := start + w.batchSize
		if end > len(records) {
			end = len(records)
		}

		n, missing, err := w.writeBatch(ctx, records[start:end])
		written += n
		if err == nil {
			continue
		}
		log.WithError(err).Warnf("batch write incomplete [table=%s, written=%d, unprocessed=%d]", w.table, n, len(missing))
		unprocessed = append(unprocessed, missing...)
		if cause == nil {
			cause = err
		}
		if ctx.Err() != nil {
			for _, r := range records[end:] {
				unprocessed = append(unprocessed, r.ID())
			}
			break
		}
	}

	if len(unprocessed) > 0 {
		return written, &WriteError{Unprocessed: unprocessed, Cause: cause}
	}
	return written, nil
}

func (w *Writer) writeBatch(ctx context.Context, batch []prices.PriceTierRecord) (int, []string, error) {
	requests := make([]types.WriteRequest, len(batch))
	for i, r := range batch {
		item, err := attributevalue.MarshalMap(NewItem(r))
		if err != nil {
			return 0, recordIDs(batch), fmt.Errorf("marshalling price tier %s: %w", r.ID(), err)
		}
		requests[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}
	}

	pending := requests
	for attempt := 1; ; attempt++ {
		out, err := w.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{w.table: pending},
		})
		if err != nil {
			return len(requests) - len(pending), requestIDs(pending), err
		}

		next := out.UnprocessedItems[w.table]
		if len(next) == 0 {
			return len(requests), nil, nil
		}
		if attempt >= w.maxAttempts {
			return len(requests) - len(next), requestIDs(next), fmt.Errorf("items still unprocessed after %d attempts", attempt)
		}

		delay, err := w.backoff.BackoffDelay(attempt, nil)
		if err != nil {
			return len(requests) - len(next), requestIDs(next), err
		}
		log.Debugf("retrying unprocessed items [table=%s, count=%d, attempt=%d, delay=%s]", w.table, len(next), attempt, delay)
		if err := w.sleep(ctx, delay); err != nil {
			return len(requests) - len(next), requestIDs(next), err
		}
		pending = next
	}
}

func dedup(records []prices.PriceTierRecord) []prices.PriceTierRecord {
	index := make(map[string]int, len(records))
	out := make([]prices.PriceTierRecord, 0, len(records))
	for _, r := range records {
		id := r.ID()
		if i, ok := index[id]; ok {
			out[i] = r
			continue
		}
		index[id] = len(out)
		out = append(out, r)
	}
	if dropped := len(records) - len(out); dropped > 0 {
		log.Warnf("dropped %d price tiers with duplicate ids", dropped)
	}
	return out
}

func recordIDs(records []prices.PriceTierRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID()
	}
	return ids
}

func requestIDs(requests []types.WriteRequest) []string {
	ids := make([]string, 0, len(requests))
	for _, r := range requests {
		if r.PutRequest == nil {
			continue
		}
		if v, ok := r.PutRequest.Item["id"].(*types.AttributeValueMemberS); ok {
			ids = append(ids, v.Value)
		}
	}
	return ids
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
