package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/internal/domain/model"
)

func TestParseIntent(t *testing.T) {
	t.Parallel()
	p := New(Options{})

	tests := []struct {
		name      string
		query     string
		want      model.Target
		wantType  model.RequestType
		platforms []string
		depth     model.Depth
	}{
		{
			name:      "handle with platform keyword",
			query:     "investigate @alice_99 on tiktok",
			want:      model.Target{Username: "alice_99"},
			wantType:  model.RequestTypeProfile,
			platforms: []string{"tiktok"},
			depth:     model.DepthMedium,
		},
		{
			name:      "platform followed by bare username",
			query:     "tiktok user charli",
			want:      model.Target{Username: "charli"},
			wantType:  model.RequestTypeProfile,
			platforms: []string{"tiktok"},
			depth:     model.DepthMedium,
		},
		{
			name:  "bare domain",
			query: "deep dive on example.com",
			want:  model.Target{Domain: "example.com"},
			depth: model.DepthDeep,
		},
		{
			name:  "url reduced to registrable domain",
			query: "https://blog.example.co.uk/post/1",
			want:  model.Target{Domain: "example.co.uk"},
			depth: model.DepthMedium,
		},
		{
			name:  "image url",
			query: "where was https://cdn.example.com/a/photo.jpg taken",
			want:  model.Target{ImageURL: "https://cdn.example.com/a/photo.jpg"},
			depth: model.DepthMedium,
		},
		{
			name:  "email is not mistaken for a domain",
			query: "find everything about John@Example.org",
			want:  model.Target{Email: "john@example.org"},
			depth: model.DepthMedium,
		},
		{
			name:  "ethereum address",
			query: "trace 0x52908400098527886E0F7030069857D2E4169EE7",
			want:  model.Target{EthereumAddress: "0x52908400098527886E0F7030069857D2E4169EE7"},
			depth: model.DepthMedium,
		},
		{
			name:  "bitcoin address",
			query: "wallet 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
			want:  model.Target{BitcoinAddress: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
			depth: model.DepthMedium,
		},
		{
			name:  "ip address",
			query: "quick scan 8.8.8.8",
			want:  model.Target{IPAddress: "8.8.8.8"},
			depth: model.DepthShallow,
		},
		{
			name:  "phone number",
			query: "+1 (555) 123-4567 owner",
			want:  model.Target{Phone: "+1 (555) 123-4567"},
			depth: model.DepthMedium,
		},
		{
			name:  "hashtag",
			query: "track #freeBritney",
			want:  model.Target{Hashtag: "freeBritney"},
			depth: model.DepthMedium,
		},
		{
			name:     "person name fallback",
			query:    "who is John Smith",
			want:     model.Target{Name: "John Smith"},
			wantType: model.RequestTypePerson,
			depth:    model.DepthMedium,
		},
		{
			name:  "nothing recognisable",
			query: "42 ok",
			want:  model.Target{Custom: "42 ok"},
			depth: model.DepthMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := p.ParseIntent(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Target)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.platforms, got.Platforms)
			assert.Equal(t, tt.depth, got.Depth)
		})
	}
}

func TestParseIntentEmpty(t *testing.T) {
	t.Parallel()
	_, err := New(Options{}).ParseIntent(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRegistrableDomain(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "example.com", registrableDomain("WWW.Example.com."))
	assert.Equal(t, "example.co.uk", registrableDomain("a.b.example.co.uk"))
	assert.Empty(t, registrableDomain("report.pdf"))
	assert.Empty(t, registrableDomain("10.0.0.1"))
	assert.Empty(t, registrableDomain("com"))
}
