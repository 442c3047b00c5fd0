package source

import (
	"testing"

	"github.com/pulsejet/fffr/internal/logging"
)

func TestFetchToTempRequiresCredentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")

	_, err := FetchToTemp(S3Object{Region: "us-east-1", Bucket: "b", Key: "k"}, t.TempDir(), logging.New(logging.Quiet))
	if err == nil {
		t.Fatalf("FetchToTemp with no AWS credentials = nil error, want one")
	}
}
