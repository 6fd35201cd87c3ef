package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducts struct {
	pages [][]string
	err   error
	input []*pricing.GetProductsInput
}

func (f *fakeProducts) GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	f.input = append(f.input, params)
	if f.err != nil {
		return nil, f.err
	}
	i := len(f.input) - 1
	out := &pricing.GetProductsOutput{
		FormatVersion: aws.String("aws_v1"),
		PriceList:     f.pages[i],
	}
	if i < len(f.pages)-1 {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

const standardPriceList = `{
	"product": {"productFamily": "Storage", "sku": "4AJHPB29ZPVFADXP", "attributes": {"regionCode": "eu-west-1"}},
	"serviceCode": "AmazonS3",
	"version": "20210601",
	"terms": {"OnDemand": {"4AJHPB29ZPVFADXP.JRTCKXETXF": {
		"offerTermCode": "JRTCKXETXF",
		"sku": "4AJHPB29ZPVFADXP",
		"effectiveDate": "2021-06-01T00:00:00Z",
		"priceDimensions": {"4AJHPB29ZPVFADXP.JRTCKXETXF.A": {"unit": "GB-Mo", "beginRange": "0", "endRange": "Inf", "pricePerUnit": {"USD": "0.023"}}}
	}}}
}`

const glacierPriceList = `{
	"product": {"productFamily": "Storage", "sku": "SX7QQVPF4M2A4YZ2"},
	"serviceCode": "AmazonS3",
	"terms": {"OnDemand": {"SX7QQVPF4M2A4YZ2.JRTCKXETXF": {
		"offerTermCode": "JRTCKXETXF",
		"effectiveDate": "2021-06-01T00:00:00Z",
		"priceDimensions": {"SX7QQVPF4M2A4YZ2.JRTCKXETXF.A": {"beginRange": "0", "endRange": "Inf", "pricePerUnit": {"USD": "0.004"}}}
	}}}
}`

func TestAPISourceMergesPages(t *testing.T) {
	client := &fakeProducts{pages: [][]string{{standardPriceList}, {glacierPriceList}}}
	src := NewAPISourceFromClient(client, "AmazonS3", "eu-west-1")

	doc, err := src.Current(context.Background())
	require.NoError(t, err)
	require.Len(t, client.input, 2)
	assert.Equal(t, "AmazonS3", *client.input[0].ServiceCode)
	assert.Equal(t, "regionCode", *client.input[0].Filters[0].Field)
	assert.Equal(t, "eu-west-1", *client.input[0].Filters[0].Value)

	assert.Equal(t, "aws_v1", doc.FormatVersion)
	assert.Equal(t, "20210601", doc.Version)
	assert.Len(t, doc.Products, 2)

	std := doc.Terms.OnDemand["4AJHPB29ZPVFADXP"]["4AJHPB29ZPVFADXP.JRTCKXETXF"]
	assert.Equal(t, "0.023", std.PriceDimensions["4AJHPB29ZPVFADXP.JRTCKXETXF.A"].PricePerUnit["USD"])
	_, ok := doc.Terms.OnDemand["SX7QQVPF4M2A4YZ2"]["SX7QQVPF4M2A4YZ2.JRTCKXETXF"]
	assert.True(t, ok)
}

func TestAPISourceErrors(t *testing.T) {
	t.Run("call failure", func(t *testing.T) {
		src := NewAPISourceFromClient(&fakeProducts{err: errors.New("throttled")}, "AmazonS3", "eu-west-1")
		_, err := src.Current(context.Background())
		var fe *FetchError
		require.True(t, errors.As(err, &fe))
		assert.Contains(t, fe.URL, "GetProducts")
	})

	t.Run("malformed entry", func(t *testing.T) {
		src := NewAPISourceFromClient(&fakeProducts{pages: [][]string{{`{"product":`}}}, "AmazonS3", "eu-west-1")
		_, err := src.Current(context.Background())
		var fe *FetchError
		assert.True(t, errors.As(err, &fe))
	})
}
