package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver() *Resolver {
	return NewResolver(ResolverConfig{
		CloudflareCustomerCode: "f33zs165nr7gyfy4",
		BunnyCDNHost:           "vz-1a2b3c.b-cdn.net",
		BaselineResolution:     480,
	})
}

func TestInferProvider(t *testing.T) {
	tests := []struct {
		url      string
		expected Provider
	}{
		{"https://iframe.videodelivery.net/5d5bc37ffcf54c9b82e996823bffbb81", ProviderCloudflare},
		{"https://videodelivery.net/5d5bc37f/manifest/video.m3u8", ProviderCloudflare},
		{"https://customer-abc.cloudflarestream.com/5d5bc37f/manifest/video.m3u8", ProviderCloudflare},
		{"https://iframe.mediadelivery.net/embed/1234/6f1e-44", ProviderBunny},
		{"https://vz-1a2b3c.b-cdn.net/6f1e-44/playlist.m3u8", ProviderBunny},
		{"https://cdn.example.com/video.mp4", ProviderUnknown},
		{"assets/fallback.mp4", ProviderLocal},
		{"file:///opt/vguide/fallback.mp4", ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, InferProvider(tt.url))
		})
	}
}

func TestResolver_Cloudflare(t *testing.T) {
	r := testResolver()
	canonical := "https://customer-f33zs165nr7gyfy4.cloudflarestream.com/5d5bc37f/manifest/video.m3u8"

	tests := []struct {
		name string
		raw  string
	}{
		{"embed", "https://iframe.videodelivery.net/5d5bc37f"},
		{"customer iframe", "https://customer-f33zs165nr7gyfy4.cloudflarestream.com/5d5bc37f/iframe"},
		{"legacy manifest", "https://videodelivery.net/5d5bc37f/manifest/video.m3u8"},
		{"canonical", canonical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := r.Resolve(tt.raw, ProviderUnknown, false)
			require.NoError(t, err)
			assert.Equal(t, ProviderCloudflare, desc.Provider)
			assert.Equal(t, FormManifest, desc.Form)
			assert.Equal(t, canonical, desc.ResolvedURL)
			assert.Equal(t, "5d5bc37f", desc.VideoID)
			assert.Equal(t, tt.raw, desc.RawURL)
		})
	}
}

func TestResolver_CloudflareWithoutCustomerCode(t *testing.T) {
	r := NewResolver(ResolverConfig{})

	desc, err := r.Resolve("https://iframe.videodelivery.net/5d5bc37f", ProviderCloudflare, false)
	require.NoError(t, err)
	assert.Equal(t, "https://videodelivery.net/5d5bc37f/manifest/video.m3u8", desc.ResolvedURL)
}

func TestResolver_Bunny(t *testing.T) {
	r := testResolver()

	tests := []struct {
		name          string
		raw           string
		forceBaseline bool
		expectedURL   string
		expectedForm  Form
		expectedRes   int
	}{
		{
			name:         "manifest passes through",
			raw:          "https://vz-1a2b3c.b-cdn.net/6f1e-44/playlist.m3u8",
			expectedURL:  "https://vz-1a2b3c.b-cdn.net/6f1e-44/playlist.m3u8",
			expectedForm: FormManifest,
		},
		{
			name:         "direct file keeps tier",
			raw:          "https://vz-1a2b3c.b-cdn.net/6f1e-44/play_720p.mp4",
			expectedURL:  "https://vz-1a2b3c.b-cdn.net/6f1e-44/play_720p.mp4",
			expectedForm: FormDirect,
			expectedRes:  720,
		},
		{
			name:         "embed to manifest",
			raw:          "https://iframe.mediadelivery.net/embed/1234/6f1e-44",
			expectedURL:  "https://vz-1a2b3c.b-cdn.net/6f1e-44/playlist.m3u8",
			expectedForm: FormManifest,
		},
		{
			name:         "play to manifest",
			raw:          "https://iframe.mediadelivery.net/play/1234/6f1e-44?autoplay=true",
			expectedURL:  "https://vz-1a2b3c.b-cdn.net/6f1e-44/playlist.m3u8",
			expectedForm: FormManifest,
		},
		{
			name:          "embed forced to baseline file",
			raw:           "https://iframe.mediadelivery.net/embed/1234/6f1e-44",
			forceBaseline: true,
			expectedURL:   "https://vz-1a2b3c.b-cdn.net/6f1e-44/play_480p.mp4",
			expectedForm:  FormDirect,
			expectedRes:   480,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := r.Resolve(tt.raw, ProviderBunny, tt.forceBaseline)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedURL, desc.ResolvedURL)
			assert.Equal(t, tt.expectedForm, desc.Form)
			assert.Equal(t, tt.expectedRes, desc.Resolution)
			assert.Equal(t, "6f1e-44", desc.VideoID)
		})
	}
}

func TestResolver_BunnyEmbedNeedsCDNHost(t *testing.T) {
	r := NewResolver(ResolverConfig{})
	_, err := r.Resolve("https://iframe.mediadelivery.net/embed/1234/6f1e-44", ProviderBunny, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CDN host")
}

func TestResolver_Idempotent(t *testing.T) {
	r := testResolver()
	inputs := []string{
		"https://iframe.videodelivery.net/5d5bc37f",
		"https://videodelivery.net/5d5bc37f/manifest/video.m3u8",
		"https://iframe.mediadelivery.net/embed/1234/6f1e-44",
		"https://vz-1a2b3c.b-cdn.net/6f1e-44/play_360p.mp4",
		"https://cdn.example.com/video.mp4",
	}

	for _, raw := range inputs {
		first, err := r.Resolve(raw, ProviderUnknown, false)
		require.NoError(t, err)
		second, err := r.Resolve(first.ResolvedURL, ProviderUnknown, false)
		require.NoError(t, err)
		assert.Equal(t, first.ResolvedURL, second.ResolvedURL, raw)
		assert.Equal(t, first.Form, second.Form, raw)
	}
}

func TestResolver_Passthrough(t *testing.T) {
	r := testResolver()

	desc, err := r.Resolve("https://cdn.example.com/guides/intro.mp4?sig=1", ProviderUnknown, true)
	require.NoError(t, err)
	assert.Equal(t, FormPassthrough, desc.Form)
	assert.Equal(t, "https://cdn.example.com/guides/intro.mp4?sig=1", desc.ResolvedURL)

	_, err = r.Resolve("   ", ProviderUnknown, false)
	assert.Error(t, err)
}

func TestDirect(t *testing.T) {
	r := testResolver()
	manifest, err := r.Resolve("https://vz-1a2b3c.b-cdn.net/6f1e-44/playlist.m3u8", ProviderBunny, false)
	require.NoError(t, err)

	direct, err := Direct(manifest, 360)
	require.NoError(t, err)
	assert.Equal(t, "https://vz-1a2b3c.b-cdn.net/6f1e-44/play_360p.mp4", direct.ResolvedURL)
	assert.Equal(t, 360, direct.Resolution)
	assert.Equal(t, manifest.RawURL, direct.RawURL)

	cf, err := r.Resolve("https://iframe.videodelivery.net/5d5bc37f", ProviderCloudflare, false)
	require.NoError(t, err)
	_, err = Direct(cf, 360)
	assert.Error(t, err)
}
