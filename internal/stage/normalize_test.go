package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSerial(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  abc123.", "ABC123"},
		{"xyz-9.", "XYZ-9"},
		{"ABC123", "ABC123"},
		{"abc 123", "ABC 123"},
		{"a.b.c.", "A.B.C"},
		{"abc123 .,;: ", "ABC123"},
		{"abc123\t", "ABC123"},
		{"...", ""},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSerial(tt.in))
		})
	}
}

func TestNormalizeSerialIdempotent(t *testing.T) {
	for _, in := range []string{"  abc123.", "xyz-9.", "a; b;", "ß."} {
		once := NormalizeSerial(in)
		assert.Equal(t, once, NormalizeSerial(once), in)
	}
}

func TestLooksLikeURL(t *testing.T) {
	assert.True(t, LooksLikeURL("http://example.com/asset/1"))
	assert.True(t, LooksLikeURL("HTTPS://EXAMPLE.COM"))
	assert.True(t, LooksLikeURL("see www.example.com"))
	assert.False(t, LooksLikeURL("PC-12345"))
	assert.False(t, LooksLikeURL(""))
}
