package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectFor(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"/segment/viirs/l1b/", "segment.viirs.l1b"},
		{"segment/viirs", "segment.viirs"},
		{"plain", "plain"},
		{"", ""},
		{"///", "///"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SubjectFor(tt.subject), "subject %q", tt.subject)
	}
}

func TestConnectNATSFailsWithCodedError(t *testing.T) {
	// Nothing listens on this port; the failure must carry the sink code.
	_, err := ConnectNATS(Config{URL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "SINK_FAILURE")
}
