// Package prices turns an S3 version document into flat, content-addressed
// price tier records.
package prices

import (
	"strings"

	"github.com/AndreZiviani/s3-price-ingester/catalog"
	log "github.com/sirupsen/logrus"
)

// StorageClass is the storage type a price tier applies to.
type StorageClass string

const (
	ReducedRedundancy StorageClass = "Reduced Redundancy"
	Standard          StorageClass = "Standard"
	Glacier           StorageClass = "Glacier"
	InfrequentAccess  StorageClass = "Infrequent Access"
)

// SKUEntry binds a storage class to the product SKU carrying its storage price.
type SKUEntry struct {
	Class StorageClass
	SKU   string
}

// SKUTable is walked in order, which fixes the order of extracted records.
type SKUTable []SKUEntry

// DefaultSKUs holds the eu-west-1 storage SKUs of the AmazonS3 offer.
var DefaultSKUs = SKUTable{
	{Class: ReducedRedundancy, SKU: "2M7QTWC3ZQPKXMXZ"},
	{Class: Standard, SKU: "4AJHPB29ZPVFADXP"},
	{Class: Glacier, SKU: "SX7QQVPF4M2A4YZ2"},
	{Class: InfrequentAccess, SKU: "62UY3D5HXV9CXNMK"},
}

// volumeTypes maps the volumeType attribute of S3 storage products to classes.
var volumeTypes = map[string]StorageClass{
	"Reduced Redundancy":           ReducedRedundancy,
	"Standard":                     Standard,
	"Amazon Glacier":               Glacier,
	"Standard - Infrequent Access": InfrequentAccess,
}

// ResolveSKUs rebinds every class of table to the storage product the document
// lists for it, since SKUs differ per region. Classes without a matching product
// keep their SKU from table.
func ResolveSKUs(doc *catalog.VersionDocument, table SKUTable) SKUTable {
	if doc == nil {
		return table
	}

	found := map[StorageClass]catalog.Product{}
	for sku, p := range doc.Products {
		if p.ProductFamily != "Storage" {
			continue
		}
		class, ok := volumeTypes[p.Attributes["volumeType"]]
		if !ok {
			continue
		}
		if p.Sku == "" {
			p.Sku = sku
		}
		if _, priced := doc.Terms.OnDemand[p.Sku]; !priced {
			continue
		}
		if prev, ok := found[class]; ok && !preferProduct(p, prev) {
			continue
		}
		found[class] = p
	}

	resolved := make(SKUTable, len(table))
	for i, entry := range table {
		resolved[i] = entry
		if p, ok := found[entry.Class]; ok && p.Sku != entry.SKU {
			log.Debugf("resolved storage sku [class=%s, sku=%s, default=%s]", entry.Class, p.Sku, entry.SKU)
			resolved[i].SKU = p.Sku
		}
	}
	return resolved
}

// preferProduct favours the timed storage usage type, then the smallest SKU.
func preferProduct(p, than catalog.Product) bool {
	pt := strings.Contains(p.Attributes["usagetype"], "TimedStorage")
	tt := strings.Contains(than.Attributes["usagetype"], "TimedStorage")
	if pt != tt {
		return pt
	}
	return p.Sku < than.Sku
}
