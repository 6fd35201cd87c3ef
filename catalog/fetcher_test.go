package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const regionIndexBody = `{
	"formatVersion": "v1.0",
	"publicationDate": "2021-06-01T00:00:00Z",
	"regions": {
		"eu-west-1": {
			"regionCode": "eu-west-1",
			"currentVersionUrl": "/offers/v1.0/aws/AmazonS3/20210601/eu-west-1/index.json"
		}
	}
}`

const versionDocumentBody = `{
	"formatVersion": "v1.0",
	"offerCode": "AmazonS3",
	"version": "20210601",
	"products": {
		"4AJHPB29ZPVFADXP": {"sku": "4AJHPB29ZPVFADXP", "productFamily": "Storage", "attributes": {"storageClass": "General Purpose"}}
	},
	"terms": {
		"OnDemand": {
			"4AJHPB29ZPVFADXP": {
				"4AJHPB29ZPVFADXP.JRTCKXETXF": {
					"offerTermCode": "JRTCKXETXF",
					"sku": "4AJHPB29ZPVFADXP",
					"effectiveDate": "2021-06-01T00:00:00Z",
					"priceDimensions": {
						"4AJHPB29ZPVFADXP.JRTCKXETXF.PGHJ3S3EYE": {
							"unit": "GB-Mo",
							"beginRange": "0",
							"endRange": "51200",
							"pricePerUnit": {"USD": "0.0230000000"}
						}
					},
					"termAttributes": {}
				}
			}
		}
	}
}`

func catalogServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/offers/v1.0/aws/AmazonS3/current/region_index.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Write([]byte(regionIndexBody))
	})
	mux.HandleFunc("/offers/v1.0/aws/AmazonS3/20210601/eu-west-1/index.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Write([]byte(versionDocumentBody))
	})
	mux.HandleFunc("/broken.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"regions": `))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetcherCurrent(t *testing.T) {
	var hits int32
	server := catalogServer(t, &hits)

	f, err := NewFetcher(server.URL, "AmazonS3", "eu-west-1", server.Client())
	require.NoError(t, err)

	doc, err := f.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, "20210601", doc.Version)

	term := doc.Terms.OnDemand["4AJHPB29ZPVFADXP"]["4AJHPB29ZPVFADXP.JRTCKXETXF"]
	assert.Equal(t, TermOnDemand, term.OfferTermCode)
	assert.Equal(t, "2021-06-01T00:00:00Z", term.EffectiveDate)
	dim := term.PriceDimensions["4AJHPB29ZPVFADXP.JRTCKXETXF.PGHJ3S3EYE"]
	assert.Equal(t, "0.0230000000", dim.PricePerUnit["USD"])
	assert.Equal(t, "51200", dim.EndRange)
}

func TestFetcherUnknownRegion(t *testing.T) {
	var hits int32
	server := catalogServer(t, &hits)

	f, err := NewFetcher(server.URL, "AmazonS3", "ap-south-2", server.Client())
	require.NoError(t, err)

	_, err = f.Current(context.Background())
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.URL, "region_index.json")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetcherErrors(t *testing.T) {
	var hits int32
	server := catalogServer(t, &hits)

	f, err := NewFetcher(server.URL, "AmazonS3", "eu-west-1", server.Client())
	require.NoError(t, err)

	var v map[string]interface{}
	for name, url := range map[string]string{
		"not found": server.URL + "/missing.json",
		"malformed": server.URL + "/broken.json",
		"network":   "http://127.0.0.1:1/index.json",
	} {
		t.Run(name, func(t *testing.T) {
			err := f.FetchJSON(context.Background(), url, &v)
			var fe *FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, url, fe.URL)
			assert.Error(t, fe.Cause)
		})
	}
}

func TestFetcherHonoursClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	f, err := NewFetcher(server.URL, "AmazonS3", "eu-west-1", &http.Client{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = f.RegionIndex(context.Background())
	var fe *FetchError
	assert.True(t, errors.As(err, &fe))
}

func TestNewFetcherRejectsRelativeHost(t *testing.T) {
	_, err := NewFetcher("pricing.example.com", "AmazonS3", "eu-west-1", nil)
	assert.Error(t, err)
}
