package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
)

// Event is a price list change notification. Only OfferCode is required.
type Event struct {
	FormatVersion     string `json:"formatVersion,omitempty"`
	OfferCode         string `json:"offerCode"`
	Version           string `json:"version,omitempty"`
	CurrentVersionURL string `json:"currentVersionUrl,omitempty"`
}

// DecodeEvents reads an invocation payload: either a bare notification or an
// SNS event whose messages are notifications.
func DecodeEvents(raw json.RawMessage) ([]Event, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty trigger event")
	}

	var sns events.SNSEvent
	if err := json.Unmarshal(raw, &sns); err == nil && len(sns.Records) > 0 {
		evs := make([]Event, 0, len(sns.Records))
		for _, rec := range sns.Records {
			var ev Event
			if err := json.Unmarshal([]byte(rec.SNS.Message), &ev); err != nil {
				return nil, fmt.Errorf("decoding sns message %s: %w", rec.SNS.MessageID, err)
			}
			evs = append(evs, ev)
		}
		return evs, nil
	}

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decoding trigger event: %w", err)
	}
	return []Event{ev}, nil
}
