package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name         string
		resourceType string
		uri          string
		want         string
	}{
		{
			name:         "no query",
			resourceType: "Machine",
			uri:          "maas://machines/abc123",
			want:         "Machine:maas://machines/abc123",
		},
		{
			name:         "query params sorted",
			resourceType: "Machine",
			uri:          "maas://machines?zone=default&hostname=web01",
			want:         "Machine:maas://machines?hostname=web01&zone=default",
		},
		{
			name:         "repeated values sorted",
			resourceType: "Machine",
			uri:          "maas://machines?tag=b&tag=a",
			want:         "Machine:maas://machines?tag=a&tag=b",
		},
		{
			name:         "empty query dropped",
			resourceType: "Subnet",
			uri:          "maas://subnets?",
			want:         "Subnet:maas://subnets",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fingerprint(tt.resourceType, tt.uri))
		})
	}
}

func TestFingerprint_ParameterOrderIrrelevant(t *testing.T) {
	a := Fingerprint("Machine", "maas://machines?hostname=web01&zone=default")
	b := Fingerprint("Machine", "maas://machines?zone=default&hostname=web01")
	assert.Equal(t, a, b)
}
