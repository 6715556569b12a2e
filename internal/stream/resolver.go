package stream

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Provider identifies the video host a stored URL belongs to
type Provider string

const (
	ProviderUnknown    Provider = ""
	ProviderCloudflare Provider = "cloudflare"
	ProviderBunny      Provider = "bunny"
	ProviderLocal      Provider = "local"
)

// Form is the playable shape of a resolved URL
type Form string

const (
	FormManifest    Form = "manifest"
	FormDirect      Form = "direct"
	FormPassthrough Form = "passthrough"
	FormLocal       Form = "local"
)

// Descriptor is the resolved, provider-normalized identity of a playable video.
// Descriptors are values: a fallback produces a new one instead of mutating.
type Descriptor struct {
	Provider    Provider `json:"provider"`
	RawURL      string   `json:"raw_url"`
	ResolvedURL string   `json:"resolved_url"`
	Form        Form     `json:"form"`
	VideoID     string   `json:"video_id,omitempty"`
	Host        string   `json:"host,omitempty"`
	// Resolution is the vertical resolution of a direct file, 0 for adaptive manifests
	Resolution int `json:"resolution,omitempty"`
}

// String returns a short human readable form
func (d Descriptor) String() string {
	if d.Resolution > 0 {
		return fmt.Sprintf("%s/%s@%dp %s", d.providerName(), d.Form, d.Resolution, d.ResolvedURL)
	}
	return fmt.Sprintf("%s/%s %s", d.providerName(), d.Form, d.ResolvedURL)
}

func (d Descriptor) providerName() string {
	if d.Provider == ProviderUnknown {
		return "unknown"
	}
	return string(d.Provider)
}

// ResolverConfig holds the provider account details needed to build canonical URLs
type ResolverConfig struct {
	// CloudflareCustomerCode is the "customer-<code>" subdomain for canonical manifests
	CloudflareCustomerCode string
	// BunnyCDNHost is the pull zone host serving playlists and direct files (vz-xxxx.b-cdn.net)
	BunnyCDNHost string
	// BaselineResolution is used when a caller forces the direct-file form
	BaselineResolution int
}

// Resolver turns stored provider URLs into playable URLs. It never touches the network.
type Resolver struct {
	cfg ResolverConfig
}

// NewResolver creates a resolver
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.BaselineResolution <= 0 {
		cfg.BaselineResolution = 480
	}
	return &Resolver{cfg: cfg}
}

var (
	cfCustomerHost = regexp.MustCompile(`^customer-([a-z0-9]+)\.cloudflarestream\.com$`)
	bunnyDirect    = regexp.MustCompile(`^/([^/]+)/play_(\d+)p\.mp4$`)
	bunnyPlaylist  = regexp.MustCompile(`^/([^/]+)/playlist\.m3u8$`)
	bunnyEmbedPath = regexp.MustCompile(`^/(?:embed|play)/[^/]+/([^/?#]+)`)
	cfManifestPath = regexp.MustCompile(`^/([^/]+)/manifest/video\.m3u8$`)
	cfIframePath   = regexp.MustCompile(`^/([^/]+)/iframe$`)
	cfBarePath     = regexp.MustCompile(`^/([^/]+)/?$`)
)

// InferProvider guesses the provider from the URL shape
func InferProvider(raw string) Provider {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ProviderUnknown
	}
	if u.Scheme == "" || u.Scheme == "file" {
		return ProviderLocal
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "videodelivery.net", host == "iframe.videodelivery.net",
		cfCustomerHost.MatchString(host), strings.HasSuffix(host, ".cloudflarestream.com"):
		return ProviderCloudflare
	case host == "iframe.mediadelivery.net", host == "video.bunnycdn.com",
		strings.HasSuffix(host, ".b-cdn.net"), strings.HasSuffix(host, ".mediadelivery.net"):
		return ProviderBunny
	}
	return ProviderUnknown
}

// Resolve normalizes raw into a playable descriptor. An empty provider is inferred.
// URLs already in manifest form come back unchanged, so Resolve is idempotent.
func (r *Resolver) Resolve(raw string, provider Provider, forceBaseline bool) (Descriptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Descriptor{}, fmt.Errorf("empty video URL")
	}
	if provider == ProviderUnknown {
		provider = InferProvider(raw)
	}

	switch provider {
	case ProviderLocal:
		return Descriptor{Provider: ProviderLocal, RawURL: raw, ResolvedURL: raw, Form: FormLocal}, nil
	case ProviderCloudflare:
		return r.resolveCloudflare(raw)
	case ProviderBunny:
		return r.resolveBunny(raw, forceBaseline)
	default:
		return passthrough(raw, provider), nil
	}
}

func passthrough(raw string, provider Provider) Descriptor {
	return Descriptor{Provider: provider, RawURL: raw, ResolvedURL: raw, Form: FormPassthrough}
}

func (r *Resolver) resolveCloudflare(raw string) (Descriptor, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Descriptor{}, fmt.Errorf("invalid cloudflare URL: %w", err)
	}
	host := strings.ToLower(u.Hostname())

	code := r.cfg.CloudflareCustomerCode
	if m := cfCustomerHost.FindStringSubmatch(host); m != nil {
		code = m[1]
	}

	var id string
	switch {
	case cfManifestPath.MatchString(u.Path):
		id = cfManifestPath.FindStringSubmatch(u.Path)[1]
	case cfIframePath.MatchString(u.Path):
		id = cfIframePath.FindStringSubmatch(u.Path)[1]
	case host == "iframe.videodelivery.net" && cfBarePath.MatchString(u.Path):
		id = cfBarePath.FindStringSubmatch(u.Path)[1]
	default:
		return passthrough(raw, ProviderCloudflare), nil
	}

	resolved := fmt.Sprintf("https://videodelivery.net/%s/manifest/video.m3u8", id)
	canonicalHost := "videodelivery.net"
	if code != "" {
		canonicalHost = fmt.Sprintf("customer-%s.cloudflarestream.com", code)
		resolved = fmt.Sprintf("https://%s/%s/manifest/video.m3u8", canonicalHost, id)
	}
	if cfManifestPath.MatchString(u.Path) && host == canonicalHost {
		// already canonical, keep query parameters (signed tokens) intact
		resolved = raw
	}

	return Descriptor{
		Provider:    ProviderCloudflare,
		RawURL:      raw,
		ResolvedURL: resolved,
		Form:        FormManifest,
		VideoID:     id,
		Host:        canonicalHost,
	}, nil
}

func (r *Resolver) resolveBunny(raw string, forceBaseline bool) (Descriptor, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Descriptor{}, fmt.Errorf("invalid bunny URL: %w", err)
	}
	host := strings.ToLower(u.Hostname())

	if m := bunnyPlaylist.FindStringSubmatch(u.Path); m != nil {
		return Descriptor{
			Provider:    ProviderBunny,
			RawURL:      raw,
			ResolvedURL: raw,
			Form:        FormManifest,
			VideoID:     m[1],
			Host:        host,
		}, nil
	}

	if m := bunnyDirect.FindStringSubmatch(u.Path); m != nil {
		res, _ := strconv.Atoi(m[2])
		return Descriptor{
			Provider:    ProviderBunny,
			RawURL:      raw,
			ResolvedURL: raw,
			Form:        FormDirect,
			VideoID:     m[1],
			Host:        host,
			Resolution:  res,
		}, nil
	}

	m := bunnyEmbedPath.FindStringSubmatch(u.Path)
	if m == nil {
		return passthrough(raw, ProviderBunny), nil
	}
	id := m[1]
	if r.cfg.BunnyCDNHost == "" {
		return Descriptor{}, fmt.Errorf("bunny embed URL %s needs a configured CDN host", raw)
	}

	desc := Descriptor{
		Provider: ProviderBunny,
		RawURL:   raw,
		VideoID:  id,
		Host:     r.cfg.BunnyCDNHost,
	}
	if forceBaseline {
		desc.Form = FormDirect
		desc.Resolution = r.cfg.BaselineResolution
		desc.ResolvedURL = bunnyDirectURL(r.cfg.BunnyCDNHost, id, r.cfg.BaselineResolution)
		return desc, nil
	}
	desc.Form = FormManifest
	desc.ResolvedURL = fmt.Sprintf("https://%s/%s/playlist.m3u8", r.cfg.BunnyCDNHost, id)
	return desc, nil
}

func bunnyDirectURL(host, id string, res int) string {
	return fmt.Sprintf("https://%s/%s/play_%dp.mp4", host, id, res)
}

// HasDirectFiles reports whether the provider serves per-resolution files
func HasDirectFiles(p Provider) bool {
	return p == ProviderBunny
}

// Direct returns a descriptor for the provider's direct file at the given resolution
func Direct(from Descriptor, res int) (Descriptor, error) {
	if !HasDirectFiles(from.Provider) || from.VideoID == "" || from.Host == "" {
		return Descriptor{}, fmt.Errorf("provider %s has no direct-file form for %s", from.providerName(), from.RawURL)
	}
	return Descriptor{
		Provider:    from.Provider,
		RawURL:      from.RawURL,
		ResolvedURL: bunnyDirectURL(from.Host, from.VideoID, res),
		Form:        FormDirect,
		VideoID:     from.VideoID,
		Host:        from.Host,
		Resolution:  res,
	}, nil
}

// Local returns a descriptor for a bundled fallback asset
func Local(path string) Descriptor {
	return Descriptor{Provider: ProviderLocal, RawURL: path, ResolvedURL: path, Form: FormLocal}
}
