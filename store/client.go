package store

import (
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// WithHTTPTimeout bounds every HTTP request the DynamoDB client sends.
func WithHTTPTimeout(d time.Duration) func(*dynamodb.Options) {
	return func(o *dynamodb.Options) {
		if d > 0 {
			o.HTTPClient = awshttp.NewBuildableClient().WithTimeout(d)
		}
	}
}
