package models

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "trims", content: "  hello  ", want: "hello"},
		{name: "empty", content: "", wantErr: true},
		{name: "whitespace only", content: " \n\t ", wantErr: true},
		{name: "exactly max", content: strings.Repeat("a", MaxMessageLength), want: strings.Repeat("a", MaxMessageLength)},
		{name: "one over max", content: strings.Repeat("a", MaxMessageLength+1), wantErr: true},
		{name: "multibyte counted as characters", content: strings.Repeat("é", MaxMessageLength), want: strings.Repeat("é", MaxMessageLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeContent(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				var ve *apperr.ValidationError
				assert.ErrorAs(t, err, &ve)
				assert.Equal(t, "content", ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessage_Before(t *testing.T) {
	now := time.Now()
	a := &Message{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), CreatedAt: now}
	b := &Message{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), CreatedAt: now}
	c := &Message{ID: uuid.New(), CreatedAt: now.Add(-time.Second)}

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, c.Before(a))
}
