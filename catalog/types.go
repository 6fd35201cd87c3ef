package catalog

const (
	TermOnDemand string = "JRTCKXETXF"
)

type RegionIndex struct {
	FormatVersion   string
	Disclaimer      string
	PublicationDate string
	Regions         map[string]RegionEntry
}

type RegionEntry struct {
	RegionCode        string
	CurrentVersionURL string `json:"currentVersionUrl"`
}

// VersionDocument is the region-specific offer file of the price list.
type VersionDocument struct {
	FormatVersion   string
	OfferCode       string
	Version         string
	PublicationDate string
	Products        map[string]Product
	Terms           Terms
}

type Terms struct {
	OnDemand map[string]map[string]Term
	Reserved map[string]map[string]Term
}

type Product struct {
	ProductFamily string
	Attributes    map[string]string
	Sku           string
}

type Term struct {
	PriceDimensions map[string]Details
	Sku             string
	EffectiveDate   string
	OfferTermCode   string
	TermAttributes  map[string]string
}

type Details struct {
	Unit         string
	EndRange     string
	Description  string
	AppliesTo    []string
	RateCode     string
	BeginRange   string
	PricePerUnit map[string]string
}

// priceListItem is one element of a GetProducts response page.
type priceListItem struct {
	Product     Product
	ServiceCode string
	Version     string
	Terms       struct {
		OnDemand map[string]Term
	}
}
