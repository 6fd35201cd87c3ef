package store

import (
	"github.com/AndreZiviani/s3-price-ingester/prices"
)

const DefaultTable = "s3_storage_prices"

// Item is the stored form of a price tier, keyed by its derived id.
type Item struct {
	ID          string `dynamodbav:"id"`
	StorageType string `dynamodbav:"StorageType"`
	Date        string `dynamodbav:"Date"`
	Price       string `dynamodbav:"Price"`
	BeginRange  string `dynamodbav:"BeginRange"`
	EndRange    string `dynamodbav:"EndRange"`
	Unit        string `dynamodbav:"Unit,omitempty"`
	Description string `dynamodbav:"Description,omitempty"`
}

func NewItem(r prices.PriceTierRecord) Item {
	return Item{
		ID:          r.ID(),
		StorageType: string(r.StorageClass),
		Date:        r.DateKey(),
		Price:       r.Price,
		BeginRange:  r.BeginRange,
		EndRange:    r.EndRange,
		Unit:        r.Unit,
		Description: r.Description,
	}
}
