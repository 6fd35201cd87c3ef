package prices

import (
	"testing"

	"github.com/AndreZiviani/s3-price-ingester/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storageProduct(sku, volumeType, usageType string) catalog.Product {
	return catalog.Product{
		ProductFamily: "Storage",
		Sku:           sku,
		Attributes:    map[string]string{"volumeType": volumeType, "usagetype": usageType},
	}
}

func TestResolveSKUsUsesRegionProducts(t *testing.T) {
	doc := standardOnly()
	doc.Terms.OnDemand["USE1STD"] = onDemandTerm("USE1STD", "2021-06-01", map[string]catalog.Details{
		"A": dimension("0", "Inf", "0.023"),
	})
	doc.Terms.OnDemand["USE1GLC"] = onDemandTerm("USE1GLC", "2021-06-01", map[string]catalog.Details{
		"A": dimension("0", "Inf", "0.004"),
	})
	doc.Products = map[string]catalog.Product{
		"USE1STD":   storageProduct("USE1STD", "Standard", "TimedStorage-ByteHrs"),
		"USE1GLC":   {ProductFamily: "Storage", Attributes: map[string]string{"volumeType": "Amazon Glacier"}},
		"UNPRICED":  storageProduct("UNPRICED", "Reduced Redundancy", "TimedStorage-RRS-ByteHrs"),
		"USE1REQ":   {ProductFamily: "API Request", Sku: "USE1REQ", Attributes: map[string]string{"volumeType": "Standard"}},
		"USE1OTHER": storageProduct("USE1OTHER", "Intelligent-Tiering", "TimedStorage-INT-FA-ByteHrs"),
	}

	resolved := ResolveSKUs(doc, DefaultSKUs)
	require.Len(t, resolved, len(DefaultSKUs))
	assert.Equal(t, SKUTable{
		{Class: ReducedRedundancy, SKU: "2M7QTWC3ZQPKXMXZ"},
		{Class: Standard, SKU: "USE1STD"},
		{Class: Glacier, SKU: "USE1GLC"},
		{Class: InfrequentAccess, SKU: "62UY3D5HXV9CXNMK"},
	}, resolved)

	// the input table is left alone
	assert.Equal(t, "4AJHPB29ZPVFADXP", DefaultSKUs[1].SKU)
}

func TestResolveSKUsPrefersTimedStorage(t *testing.T) {
	doc := &catalog.VersionDocument{
		Products: map[string]catalog.Product{
			"AAA": storageProduct("AAA", "Standard", "Requests-Tier1"),
			"ZZZ": storageProduct("ZZZ", "Standard", "EU-TimedStorage-ByteHrs"),
		},
		Terms: catalog.Terms{OnDemand: map[string]map[string]catalog.Term{
			"AAA": onDemandTerm("AAA", "2021-06-01", nil),
			"ZZZ": onDemandTerm("ZZZ", "2021-06-01", nil),
		}},
	}

	for i := 0; i < 20; i++ {
		resolved := ResolveSKUs(doc, SKUTable{{Class: Standard, SKU: "DEFAULT"}})
		require.Equal(t, "ZZZ", resolved[0].SKU)
	}
}

func TestResolveSKUsWithoutProducts(t *testing.T) {
	assert.Equal(t, DefaultSKUs, ResolveSKUs(standardOnly(), DefaultSKUs))
	assert.Equal(t, DefaultSKUs, ResolveSKUs(nil, DefaultSKUs))
}
