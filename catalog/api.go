package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	log "github.com/sirupsen/logrus"
)

// APISource builds a VersionDocument from the Pricing query API instead of the
// bulk offer files. Only storage products of the configured region are queried.
type APISource struct {
	client    pricing.GetProductsAPIClient
	offerCode string
	region    string
}

// NewAPISource returns an APISource backed by a Pricing client derived from cfg.
func NewAPISource(cfg aws.Config, offerCode, region string) *APISource {
	tmpCfg := cfg.Copy()
	tmpCfg.Region = "us-east-1" // this service is only available in us-east-1
	return NewAPISourceFromClient(pricing.NewFromConfig(tmpCfg), offerCode, region)
}

func NewAPISourceFromClient(client pricing.GetProductsAPIClient, offerCode, region string) *APISource {
	return &APISource{client: client, offerCode: offerCode, region: region}
}

func (s *APISource) Current(ctx context.Context) (*VersionDocument, error) {
	target := fmt.Sprintf("pricing:GetProducts/%s/%s", s.offerCode, s.region)
	pag := pricing.NewGetProductsPaginator(
		s.client,
		&pricing.GetProductsInput{
			ServiceCode:   aws.String(s.offerCode),
			FormatVersion: aws.String("aws_v1"),
			MaxResults:    aws.Int32(100),
			Filters: []pricingtypes.Filter{
				{
					Field: aws.String("regionCode"),
					Type:  pricingtypes.FilterTypeTermMatch,
					Value: aws.String(s.region),
				},
				{
					Field: aws.String("productFamily"),
					Type:  pricingtypes.FilterTypeTermMatch,
					Value: aws.String("Storage"),
				},
			},
		},
	)

	doc := &VersionDocument{
		OfferCode: s.offerCode,
		Products:  map[string]Product{},
		Terms: Terms{
			OnDemand: map[string]map[string]Term{},
		},
	}

	for pag.HasMorePages() {
		page, err := pag.NextPage(ctx)
		if err != nil {
			return nil, &FetchError{URL: target, Cause: err}
		}
		if page.FormatVersion != nil {
			doc.FormatVersion = *page.FormatVersion
		}

		for _, raw := range page.PriceList {
			var item priceListItem
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				return nil, &FetchError{URL: target, Cause: fmt.Errorf("malformed price list entry: %w", err)}
			}
			sku := item.Product.Sku
			if sku == "" {
				log.Debugf("skipping price list entry without sku [offer=%s]", s.offerCode)
				continue
			}
			if doc.Version == "" {
				doc.Version = item.Version
			}

			doc.Products[sku] = item.Product
			terms, ok := doc.Terms.OnDemand[sku]
			if !ok {
				terms = map[string]Term{}
				doc.Terms.OnDemand[sku] = terms
			}
			for key, term := range item.Terms.OnDemand {
				terms[key] = term
			}
		}
	}

	log.Debugf("built version document from pricing api [offer=%s, region=%s, products=%d]", s.offerCode, s.region, len(doc.Products))
	return doc, nil
}
