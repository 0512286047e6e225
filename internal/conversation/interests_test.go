package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectInterests(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single topic",
			text: "Can you recommend a good true crime podcast?",
			want: []string{"true crime"},
		},
		{
			name: "multiple topics sorted",
			text: "I love tech podcasts and comedy shows about politics",
			want: []string{"comedy", "politics", "technology"},
		},
		{
			name: "case insensitive",
			text: "ANY GOOD HISTORY PODCASTS?",
			want: []string{"history"},
		},
		{
			name: "no match",
			text: "hello there",
			want: nil,
		},
		{
			name: "topic counted once despite multiple keywords",
			text: "business podcasts about finance and investing",
			want: []string{"business"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectInterests(tt.text))
		})
	}
}
