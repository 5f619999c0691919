package resolver

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"github.com/BradenHooton/loginguard/internal/models"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// Geo headers set by the edge proxy in front of the service
const (
	HeaderCountry = "CF-IPCountry"
	HeaderRegion  = "X-Geo-Region"
	HeaderCity    = "X-Geo-City"

	// LocalValue is the geo value reported for loopback and unspecified origins
	LocalValue = "Local"
)

// Resolver derives the ClientContext of a request
type Resolver struct {
	ipConfig *pkghttp.IPConfig
}

// New creates a Resolver. Forwarding headers are honored only from trustedProxies.
func New(trustedProxies []string) *Resolver {
	return &Resolver{ipConfig: pkghttp.NewIPConfig(trustedProxies)}
}

// ClientIP returns the origin address of req after trusted-proxy processing
func (r *Resolver) ClientIP(req *http.Request) string {
	return pkghttp.ExtractClientIP(req, r.ipConfig)
}

// Resolve never fails: fields that cannot be determined are set to models.UnknownValue
func (r *Resolver) Resolve(req *http.Request) models.ClientContext {
	ip := r.ClientIP(req)
	if net.ParseIP(ip) == nil && ip != "localhost" {
		ip = "0.0.0.0"
	}

	ua := strings.TrimSpace(req.UserAgent())
	browser, os, device := ParseUserAgent(ua)
	if ua == "" {
		ua = models.UnknownValue
	}

	cc := models.ClientContext{
		IPAddress:  ip,
		UserAgent:  ua,
		Browser:    browser,
		OS:         os,
		DeviceType: device,
	}

	if IsLocal(ip) {
		cc.Country, cc.Region, cc.City = LocalValue, LocalValue, LocalValue
		return cc
	}

	cc.Country = headerOr(req, HeaderCountry)
	if cc.Country == "XX" || cc.Country == "T1" {
		// unknown and Tor markers from the edge
		cc.Country = models.UnknownValue
	}
	cc.Region = headerOr(req, HeaderRegion)
	cc.City = headerOr(req, HeaderCity)
	return cc
}

// IsLocal reports whether ip is a loopback or unspecified address
func IsLocal(ip string) bool {
	if ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && (parsed.IsLoopback() || parsed.IsUnspecified())
}

func headerOr(req *http.Request, name string) string {
	if v := strings.TrimSpace(req.Header.Get(name)); v != "" {
		return v
	}
	return models.UnknownValue
}

// scriptingClients are product tokens of HTTP tooling; the parser reports these
// as ordinary browsers, so they are matched first and classed as bots
var scriptingClients = []string{"curl", "wget", "python-requests", "python-urllib", "go-http-client", "httpie", "libwww-perl", "okhttp"}

// ParseUserAgent extracts browser, OS family and device class from a User-Agent string
func ParseUserAgent(raw string) (browser, os, device string) {
	browser, os, device = models.UnknownValue, models.UnknownValue, "unknown"
	if raw == "" {
		return
	}

	if name, version, ok := scriptingClient(raw); ok {
		browser = withMajor(name, version)
		return browser, os, "bot"
	}

	ua := useragent.New(raw)
	if name, version := ua.Browser(); name != "" {
		browser = withMajor(name, version)
	}
	lower := strings.ToLower(raw)
	os = osFamily(strings.ToLower(ua.OS()), lower)

	switch {
	case ua.Bot():
		device = "bot"
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		device = "tablet"
	case ua.Mobile():
		device = "mobile"
	case os != models.UnknownValue:
		device = "desktop"
	}
	return
}

// scriptingClient reports the tool name and version when raw starts with a scripting client product token
func scriptingClient(raw string) (name, version string, ok bool) {
	product, _, _ := strings.Cut(raw, " ")
	name, version, _ = strings.Cut(product, "/")
	lower := strings.ToLower(name)
	for _, tool := range scriptingClients {
		if lower == tool {
			return name, version, true
		}
	}
	return "", "", false
}

// osFamily maps the parser's OS string to a family name; Apple mobile agents
// announce themselves as "like Mac OS X", so the platform is checked first
func osFamily(os, lowerUA string) string {
	switch {
	case os == "":
		return models.UnknownValue
	case strings.Contains(lowerUA, "iphone") || strings.Contains(lowerUA, "ipad") || strings.Contains(lowerUA, "ipod"):
		return "iOS"
	case strings.Contains(os, "windows"):
		return "Windows"
	case strings.Contains(os, "android"):
		return "Android"
	case strings.Contains(os, "mac os"):
		return "macOS"
	case strings.Contains(os, "cros"):
		return "ChromeOS"
	case strings.Contains(os, "linux"):
		return "Linux"
	}
	return models.UnknownValue
}

// withMajor appends the major component of version to name
func withMajor(name, version string) string {
	major, _, _ := strings.Cut(version, ".")
	if major == "" {
		return name
	}
	return name + " " + major
}
