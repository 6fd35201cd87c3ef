package prices

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Unbounded is the end range of the last tier of a storage class.
const Unbounded = "Inf"

// PriceTierRecord is one usage-volume tier of a storage class price.
// (EffectiveDate, StorageClass, BeginRange, EndRange) identifies it.
type PriceTierRecord struct {
	StorageClass  StorageClass
	EffectiveDate time.Time
	Price         string
	BeginRange    string
	EndRange      string
	Unit          string
	Description   string
}

// DateKey renders the effective date as epoch milliseconds.
func (r PriceTierRecord) DateKey() string {
	return strconv.FormatInt(r.EffectiveDate.UnixMilli(), 10)
}

func (r PriceTierRecord) ID() string {
	return DeriveID(r.DateKey(), r.StorageClass, r.BeginRange, r.EndRange)
}

// DeriveID returns the hex SHA-256 of the four key fields concatenated in order.
func DeriveID(date string, class StorageClass, beginRange, endRange string) string {
	sum := sha256.Sum256([]byte(date + string(class) + beginRange + endRange))
	return hex.EncodeToString(sum[:])
}
