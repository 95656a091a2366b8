package model_test

import (
	"testing"

	"github.com/bryan-buckman/skimmer/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeTagTitle(t *testing.T) {
	tests := []struct {
		name     string
		term     string
		expected string
	}{
		{name: "trailing comma and spaces", term: " Web,", expected: "Web"},
		{name: "lower case", term: "web", expected: "Web"},
		{name: "inner comma removed", term: "  New Tag Title, For Tests  ", expected: "New tag title for tests"},
		{name: "upper case is lowered", term: "GOLANG", expected: "Golang"},
		{name: "unicode first letter", term: "ëlan", expected: "Ëlan"},
		{name: "only commas", term: " , ,", expected: ""},
		{name: "empty", term: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, model.NormalizeTagTitle(tt.term))
		})
	}
}
