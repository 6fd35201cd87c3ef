package prices

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AndreZiviani/s3-price-ingester/catalog"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const currency = "USD"

var now = time.Now

// ExtractionError reports a key the version document lacks, or holds in an
// unusable form, for one storage class.
type ExtractionError struct {
	StorageClass StorageClass
	SKU          string
	Key          string
	Cause        error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage class %q (sku %s): invalid %s: %v", e.StorageClass, e.SKU, e.Key, e.Cause)
	}
	return fmt.Sprintf("storage class %q (sku %s): missing %s", e.StorageClass, e.SKU, e.Key)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// Extract flattens the on-demand terms of every SKU in table into price tier
// records. Storage classes are extracted concurrently; the failures of all of
// them are combined and no records are returned if any class failed.
func Extract(doc *catalog.VersionDocument, table SKUTable) ([]PriceTierRecord, error) {
	if doc == nil {
		return nil, errors.New("nil version document")
	}

	results := make([][]PriceTierRecord, len(table))
	errs := make([]error, len(table))

	var wg sync.WaitGroup
	for i, entry := range table {
		wg.Add(1)
		go func(i int, entry SKUEntry) {
			defer wg.Done()
			results[i], errs[i] = extractClass(doc, entry)
		}(i, entry)
	}
	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		return nil, err
	}

	var records []PriceTierRecord
	for _, r := range results {
		records = append(records, r...)
	}
	return records, nil
}

func extractClass(doc *catalog.VersionDocument, entry SKUEntry) ([]PriceTierRecord, error) {
	fail := func(key string, cause error) error {
		return &ExtractionError{StorageClass: entry.Class, SKU: entry.SKU, Key: key, Cause: cause}
	}

	terms, ok := doc.Terms.OnDemand[entry.SKU]
	if !ok {
		return nil, fail("terms.OnDemand."+entry.SKU, nil)
	}
	key, ok := SelectTerm(terms, now())
	if !ok {
		return nil, fail("offer term", nil)
	}
	term := terms[key]

	if term.EffectiveDate == "" {
		return nil, fail(key+".effectiveDate", nil)
	}
	date, err := ParseEffectiveDate(term.EffectiveDate)
	if err != nil {
		return nil, fail(key+".effectiveDate", err)
	}
	if len(term.PriceDimensions) == 0 {
		log.Warnf("offer term has no price dimensions [class=%s, sku=%s, term=%s]", entry.Class, entry.SKU, key)
		return nil, nil
	}

	type tier struct {
		code   string
		begin  decimal.Decimal
		record PriceTierRecord
	}
	tiers := make([]tier, 0, len(term.PriceDimensions))
	for code, dim := range term.PriceDimensions {
		price, ok := dim.PricePerUnit[currency]
		if !ok {
			return nil, fail(code+".pricePerUnit."+currency, nil)
		}
		if _, err := decimal.NewFromString(price); err != nil {
			return nil, fail(code+".pricePerUnit."+currency, err)
		}
		if dim.BeginRange == "" {
			return nil, fail(code+".beginRange", nil)
		}
		begin, err := decimal.NewFromString(dim.BeginRange)
		if err != nil {
			return nil, fail(code+".beginRange", err)
		}
		if dim.EndRange == "" {
			return nil, fail(code+".endRange", nil)
		}
		if dim.EndRange != Unbounded {
			if _, err := decimal.NewFromString(dim.EndRange); err != nil {
				return nil, fail(code+".endRange", err)
			}
		}

		tiers = append(tiers, tier{
			code:  code,
			begin: begin,
			record: PriceTierRecord{
				StorageClass:  entry.Class,
				EffectiveDate: date,
				Price:         price,
				BeginRange:    dim.BeginRange,
				EndRange:      dim.EndRange,
				Unit:          dim.Unit,
				Description:   dim.Description,
			},
		})
	}

	sort.Slice(tiers, func(i, j int) bool {
		if c := tiers[i].begin.Cmp(tiers[j].begin); c != 0 {
			return c < 0
		}
		return tiers[i].code < tiers[j].code
	})

	records := make([]PriceTierRecord, len(tiers))
	for i, t := range tiers {
		records[i] = t.record
	}
	log.Debugf("extracted price tiers [class=%s, sku=%s, term=%s, tiers=%d]", entry.Class, entry.SKU, key, len(records))
	return records, nil
}

// SelectTerm picks the offer term to read prices from. The canonical on-demand
// term wins; otherwise the latest term already in effect at t, then the earliest
// upcoming one. Ties go to the smallest key.
func SelectTerm(terms map[string]catalog.Term, t time.Time) (string, bool) {
	if len(terms) == 0 {
		return "", false
	}

	keys := make([]string, 0, len(terms))
	for k := range terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if terms[k].OfferTermCode == catalog.TermOnDemand || strings.HasSuffix(k, "."+catalog.TermOnDemand) {
			return k, true
		}
	}

	var (
		current, upcoming         string
		currentDate, upcomingDate time.Time
	)
	for _, k := range keys {
		d, err := ParseEffectiveDate(terms[k].EffectiveDate)
		if err != nil {
			continue
		}
		if !d.After(t) {
			if current == "" || d.After(currentDate) {
				current, currentDate = k, d
			}
		} else if upcoming == "" || d.Before(upcomingDate) {
			upcoming, upcomingDate = k, d
		}
	}
	switch {
	case current != "":
		return current, true
	case upcoming != "":
		return upcoming, true
	}
	return keys[0], true
}

// ParseEffectiveDate accepts the RFC 3339 timestamps of the price list and
// bare dates, both read as UTC.
func ParseEffectiveDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized effective date %q", s)
	}
	return t, nil
}
