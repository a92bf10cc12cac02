package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/keenon/AddBiomechanics-sub000/pkg/retry"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		endpoint string
		ssl      bool
		want     string
	}{
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.internal", true, "https://minio.internal"},
		{"http://already:9000", true, "http://already:9000"},
	}
	for _, tt := range tests {
		if got := endpointURL(tt.endpoint, tt.ssl); got != tt.want {
			t.Errorf("endpointURL(%q, %v) = %q, want %q", tt.endpoint, tt.ssl, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	if classify(ctx, nil) != nil {
		t.Error("classify(nil) should be nil")
	}

	transport := errors.New("connection reset")
	if !retry.IsRetryable(classify(ctx, transport)) {
		t.Error("transport errors should be retryable")
	}

	missing := fmt.Errorf("get: %w", &types.NoSuchKey{})
	if retry.IsRetryable(classify(ctx, missing)) {
		t.Error("missing keys should not be retried")
	}
	if !isNotFound(missing) {
		t.Error("isNotFound should see wrapped NoSuchKey")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if retry.IsRetryable(classify(cancelled, transport)) {
		t.Error("errors after cancellation should not be retried")
	}
}

func TestNewWithCustomEndpoint(t *testing.T) {
	live, err := New(context.Background(), Config{
		Endpoint:  "localhost:9000",
		Bucket:    "test",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if live.bucket != "test" {
		t.Errorf("bucket = %q", live.bucket)
	}
	if live.retry.MaxAttempts == 0 {
		t.Error("expected default retry config")
	}
}
