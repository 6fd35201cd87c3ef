// Package ingest runs the price ingestion: fetch the current S3 version
// document, extract the storage price tiers and upsert them.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AndreZiviani/s3-price-ingester/catalog"
	"github.com/AndreZiviani/s3-price-ingester/exporter"
	"github.com/AndreZiviani/s3-price-ingester/prices"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const DefaultOfferCode = "AmazonS3"

// ErrTriggerMismatch marks a run skipped because the trigger concerns another offer.
var ErrTriggerMismatch = errors.New("trigger is for another offer")

type Writer interface {
	Write(ctx context.Context, records []prices.PriceTierRecord) (int, error)
}

type Recorder interface {
	Observe(run exporter.Run)
}

// Result is the terminal state of an invocation.
type Result struct {
	Skipped   bool
	Reason    error
	OfferCode string
	Updated   int
}

func (r Result) String() string {
	if r.Skipped {
		return fmt.Sprintf("skipped: %v, only %s price updates are ingested", r.Reason, r.OfferCode)
	}
	return fmt.Sprintf("updated %d %s price tiers", r.Updated, r.OfferCode)
}

type Pipeline struct {
	source    catalog.Source
	writer    Writer
	recorder  Recorder
	skus      prices.SKUTable
	offerCode string
}

type Option func(*Pipeline)

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

func WithSKUs(t prices.SKUTable) Option {
	return func(p *Pipeline) {
		p.skus = t
	}
}

func WithOfferCode(code string) Option {
	return func(p *Pipeline) {
		p.offerCode = code
	}
}

func New(source catalog.Source, writer Writer, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:    source,
		writer:    writer,
		skus:      prices.DefaultSKUs,
		offerCode: DefaultOfferCode,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle runs the pipeline for ev. Events for other offers are a no-op success.
func (p *Pipeline) Handle(ctx context.Context, ev Event) (Result, error) {
	if ev.OfferCode != p.offerCode {
		log.Infof("Ignoring price update [offer=%s, expected=%s]", ev.OfferCode, p.offerCode)
		return Result{Skipped: true, Reason: ErrTriggerMismatch, OfferCode: p.offerCode}, nil
	}
	return p.Run(ctx)
}

// HandleLambda is the Lambda entry point. It runs once if any of the decoded
// events concerns the configured offer.
func (p *Pipeline) HandleLambda(ctx context.Context, raw json.RawMessage) (string, error) {
	evs, err := DecodeEvents(raw)
	if err != nil {
		return "", err
	}

	ev := evs[0]
	for _, e := range evs {
		if e.OfferCode == p.offerCode {
			ev = e
			break
		}
	}
	res, err := p.Handle(ctx, ev)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

// Run ingests the current price list unconditionally.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	logger := log.WithFields(log.Fields{
		"run_id":     uuid.NewString(),
		"offer_code": p.offerCode,
	})
	logger.Info("Starting price ingestion run")

	start := time.Now()
	records, written, err := p.run(ctx, logger)
	if p.recorder != nil {
		p.recorder.Observe(exporter.Run{
			Duration: time.Since(start),
			Written:  written,
			Records:  records,
			Err:      err,
		})
	}

	res := Result{OfferCode: p.offerCode, Updated: written}
	if err != nil {
		logger.WithError(err).Errorf("price ingestion run failed [written=%d]", written)
		return res, err
	}
	logger.Infof("Finished price ingestion run [records=%d, written=%d, duration=%s]", len(records), written, time.Since(start))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, logger *log.Entry) ([]prices.PriceTierRecord, int, error) {
	doc, err := p.source.Current(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching version document: %w", err)
	}
	logger.Debugf("fetched version document [version=%s, published=%s]", doc.Version, doc.PublicationDate)

	records, err := prices.Extract(doc, prices.ResolveSKUs(doc, p.skus))
	if err != nil {
		return nil, 0, fmt.Errorf("extracting price tiers: %w", err)
	}

	written, err := p.writer.Write(ctx, records)
	if err != nil {
		return records, written, fmt.Errorf("writing price tiers: %w", err)
	}
	return records, written, nil
}
