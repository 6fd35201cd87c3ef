package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/AndreZiviani/s3-price-ingester/catalog"
	"github.com/AndreZiviani/s3-price-ingester/exporter"
	"github.com/AndreZiviani/s3-price-ingester/ingest"
	"github.com/AndreZiviani/s3-price-ingester/store"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	log "github.com/sirupsen/logrus"
)

var (
	mode           = flag.String("mode", envOr("MODE", "cli"), "Run mode. Accepted values: cli (single run), lambda, serve (periodic runs with a metrics endpoint)")
	rawLevel       = flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level")
	pricingHost    = flag.String("pricing-host", envOr("PRICING_HOST", catalog.DefaultHost), "Price list service host")
	offerCode      = flag.String("offer-code", envOr("OFFER_CODE", ingest.DefaultOfferCode), "Offer code of the price list to ingest")
	region         = flag.String("region", envOr("PRICING_REGION", "eu-west-1"), "Region whose prices are ingested")
	table          = flag.String("table", envOr("TABLE_NAME", store.DefaultTable), "DynamoDB table receiving the price tiers")
	source         = flag.String("source", envOr("SOURCE", "bulk"), "Price source. Accepted values: bulk (offer files), api (Pricing API)")
	httpTimeout    = flag.Duration("http-timeout", envDuration("HTTP_TIMEOUT", 30*time.Second), "Timeout of a single price list request")
	runTimeout     = flag.Duration("timeout", envDuration("RUN_TIMEOUT", 5*time.Minute), "Wall-clock budget of a run in cli and serve modes")
	maxAttempts    = flag.Int("max-attempts", envInt("MAX_ATTEMPTS", store.DefaultMaxAttempts), "BatchWriteItem calls per batch before giving up on unprocessed items")
	batchSize      = flag.Int("batch-size", envInt("BATCH_SIZE", store.MaxBatchSize), "Items per BatchWriteItem call, at most 25")
	addr           = flag.String("listen-address", envOr("LISTEN_ADDRESS", ":8080"), "The address to listen on for HTTP requests in serve mode.")
	metricsPath    = flag.String("metrics-path", envOr("METRICS_PATH", "/metrics"), "path to metrics endpoint")
	interval       = flag.Duration("interval", envDuration("INTERVAL", 24*time.Hour), "Time between runs in serve mode")
	pushgatewayURL = flag.String("pushgateway", envOr("PUSHGATEWAY_URL", ""), "Pushgateway receiving run metrics in cli and lambda modes")
)

func init() {
	flag.Parse()
	parsedLevel, err := log.ParseLevel(*rawLevel)
	if err != nil {
		log.WithError(err).Warnf("Couldn't parse log level, using default: %s", log.GetLevel())
	} else {
		log.SetLevel(parsedLevel)
		log.Debugf("Set log level to %s", parsedLevel)
	}
}

func main() {
	log.Infof("Starting S3 price ingester. [mode=%s, log-level=%s, offer-code=%s, region=%s, table=%s, source=%s]", *mode, *rawLevel, *offerCode, *region, *table, *source)
	validateMode(*mode)

	ctx := context.Background()
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.WithError(err).Fatal("error while initializing aws config")
	}

	exp := exporter.NewExporter()
	registry := prometheus.NewRegistry()
	registry.MustRegister(exp)

	var src catalog.Source
	switch *source {
	case "bulk":
		client := &http.Client{
			Timeout:   *httpTimeout,
			Transport: exp.InstrumentRoundTripper(http.DefaultTransport),
		}
		src, err = catalog.NewFetcher(*pricingHost, *offerCode, *region, client)
		if err != nil {
			log.Fatal(err)
		}
	case "api":
		src = catalog.NewAPISource(awsCfg, *offerCode, *region)
	default:
		log.Fatalf("source '%s' is not recognized. Available sources: bulk, api", *source)
	}

	writer := store.NewWriter(
		dynamodb.NewFromConfig(awsCfg, store.WithHTTPTimeout(*httpTimeout)),
		*table,
		store.WithMaxAttempts(*maxAttempts),
		store.WithBatchSize(*batchSize),
	)
	pipeline := ingest.New(src, writer, ingest.WithRecorder(exp), ingest.WithOfferCode(*offerCode))

	switch *mode {
	case "cli":
		runOnce(ctx, pipeline, registry)
	case "lambda":
		lambda.Start(func(ctx context.Context, raw json.RawMessage) (string, error) {
			msg, err := pipeline.HandleLambda(ctx, raw)
			pushMetrics(registry)
			return msg, err
		})
	case "serve":
		serve(ctx, pipeline, registry)
	}
}

func runOnce(ctx context.Context, pipeline *ingest.Pipeline, registry *prometheus.Registry) {
	ctx, cancel := context.WithTimeout(ctx, *runTimeout)
	defer cancel()

	res, err := pipeline.Handle(ctx, ingest.Event{OfferCode: *offerCode})
	pushMetrics(registry)
	if err != nil {
		log.WithError(err).Fatal("price ingestion failed")
	}
	log.Info(res)
}

func serve(ctx context.Context, pipeline *ingest.Pipeline, registry *prometheus.Registry) {
	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			runCtx, cancel := context.WithTimeout(ctx, *runTimeout)
			if _, err := pipeline.Run(runCtx); err != nil {
				log.WithError(err).Error("price ingestion failed, retrying on next tick")
			}
			cancel()
			<-ticker.C
		}
	}()

	log.Infof("Starting metric http endpoint [address=%s, path=%s]", *addr, *metricsPath)
	http.Handle(*metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	http.HandleFunc("/", rootHandler)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func pushMetrics(registry *prometheus.Registry) {
	if *pushgatewayURL == "" {
		return
	}
	err := push.New(*pushgatewayURL, "s3_price_ingester").
		Gatherer(registry).
		Grouping("offer_code", *offerCode).
		Push()
	if err != nil {
		log.WithError(err).Warnf("Couldn't push metrics [url=%s]", *pushgatewayURL)
	}
}

func validateMode(m string) {
	if m != "cli" && m != "lambda" && m != "serve" {
		log.Fatalf("mode '%s' is not recognized. Available modes: cli, lambda, serve", m)
	}
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(envOr(key, ""))
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(envOr(key, ""))
	if err != nil {
		return def
	}
	return v
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<html>
		<head><title>AWS S3 Price Ingester</title></head>
		<body>
		<h1>AWS S3 Price Ingester</h1>
		<p><a href="` + *metricsPath + `">Metrics</a></p>
		</body>
		</html>
	`))

}
