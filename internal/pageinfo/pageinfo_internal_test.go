package pageinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSizes(t *testing.T) {
	tests := []struct {
		attr     string
		expected int
	}{
		{attr: "32x32", expected: 1024},
		{attr: "16X16", expected: 256},
		{attr: "16x16 48x48", expected: 2304},
		{attr: "any", expected: 0},
		{attr: "", expected: 0},
		{attr: "axb", expected: 0},
		{attr: "32", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.attr, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseSizes(tt.attr))
		})
	}
}

func TestPickFavicon(t *testing.T) {
	_, ok := pickFavicon(nil)
	assert.False(t, ok)

	url, ok := pickFavicon([]icon{{URL: "a"}})
	assert.True(t, ok)
	assert.Equal(t, "a", url)

	url, _ = pickFavicon([]icon{{URL: "a", Size: 256}, {URL: "b", Size: 1024}, {URL: "c", Size: 1024}})
	assert.Equal(t, "b", url)

	url, _ = pickFavicon([]icon{{URL: "a"}, {URL: "b"}})
	assert.Equal(t, "a", url)
}
