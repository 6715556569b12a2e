package policy

import (
	"strings"

	"github.com/mssola/useragent"
)

// Platform summarizes what the coordinator needs to know about the host browser
type Platform struct {
	UserAgent   string `json:"user_agent"`
	Browser     string `json:"browser"`
	OS          string `json:"os"`
	Mobile      bool   `json:"mobile"`
	Restrictive bool   `json:"restrictive"`
}

// DetectPlatform sniffs the user agent. Apple touch devices, every mobile
// browser and desktop Safari only honour play requests made inside a user
// gesture, so they are treated as gesture-restrictive.
func DetectPlatform(ua string) Platform {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return Platform{}
	}

	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	platform := parsed.Platform()

	p := Platform{
		UserAgent: ua,
		Browser:   browser,
		OS:        parsed.OS(),
		Mobile:    parsed.Mobile(),
	}

	switch {
	case parsed.Bot():
		p.Restrictive = false
	case platform == "iPhone", platform == "iPad", platform == "iPod":
		p.Restrictive = true
	case p.Mobile:
		p.Restrictive = true
	case browser == "Safari":
		p.Restrictive = true
	}
	return p
}
