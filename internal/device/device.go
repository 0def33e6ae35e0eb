// Package device deriva datos gruesos de dispositivo a partir del
// User-Agent y un fingerprint de baja seguridad para señales de anomalía.
// El fingerprint NO es un límite de seguridad.
package device

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Tipos de dispositivo reconocidos.
const (
	TypeDesktop = "desktop"
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
	TypeUnknown = "unknown"
)

// Info contiene los datos gruesos extraídos del User-Agent.
type Info struct {
	Type    string // desktop | mobile | tablet | unknown
	Browser string
	OS      string
}

// Parse extrae tipo de dispositivo, browser y OS de un User-Agent.
// El parsing es deliberadamente grueso: estos datos alimentan listados de
// "manage devices" y señales de anomalía, no decisiones de autorización.
func Parse(userAgent string) Info {
	ua := strings.ToLower(userAgent)
	if strings.TrimSpace(ua) == "" {
		return Info{Type: TypeUnknown, Browser: "Unknown", OS: "Unknown"}
	}
	return Info{
		Type:    deviceType(ua),
		Browser: browser(ua),
		OS:      operatingSystem(ua),
	}
}

// Fingerprint deriva un identificador estable de (user_agent, ip,
// accept_language). Base64url de sha256, truncado a 32 chars.
func Fingerprint(userAgent, ip, acceptLanguage string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + ip + "|" + acceptLanguage))
	fp := base64.RawURLEncoding.EncodeToString(sum[:])
	return fp[:32]
}

func deviceType(ua string) string {
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return TypeTablet
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		// Android sin "Mobile" es tablet por convención de Chrome
		return TypeTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return TypeMobile
	case strings.Contains(ua, "windows") || strings.Contains(ua, "macintosh") || strings.Contains(ua, "linux") || strings.Contains(ua, "x11"):
		return TypeDesktop
	default:
		return TypeUnknown
	}
}

func browser(ua string) string {
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/"):
		return "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "chrome/") || strings.Contains(ua, "crios/"):
		return "Chrome"
	case strings.Contains(ua, "firefox/") || strings.Contains(ua, "fxios/"):
		return "Firefox"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	default:
		return "Unknown"
	}
}

func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		return "iOS"
	case strings.Contains(ua, "mac os x") || strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "linux") || strings.Contains(ua, "x11"):
		return "Linux"
	default:
		return "Unknown"
	}
}
