package ai

import (
	"testing"

	"github.com/fiszki/kreator/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCardsFromText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []domain.GeneratedFlashcard
	}{
		{
			name: "numbered with labels across lines",
			text: "1. Q: What is a goroutine?\nA: A lightweight thread.\n2) Question: What is a channel?\nAnswer: A typed conduit.",
			want: []domain.GeneratedFlashcard{
				card("What is a goroutine?", "A lightweight thread."),
				card("What is a channel?", "A typed conduit."),
			},
		},
		{
			name: "front and back labels",
			text: "Front: Mitochondria?\nBack: Powerhouse of the cell",
			want: []domain.GeneratedFlashcard{card("Mitochondria?", "Powerhouse of the cell")},
		},
		{
			name: "no pattern",
			text: "The model refused to answer.",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cardsFromText(tt.text))
		})
	}
}
