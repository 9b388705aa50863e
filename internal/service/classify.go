package service

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/url"
	"strings"
)

// Грубая классификация по подстрокам User-Agent. Это эвристика, а не разбор UA:
// цифры по устройствам и браузерам приблизительные.

const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"

	BrowserChrome  = "Chrome"
	BrowserFirefox = "Firefox"
	BrowserSafari  = "Safari"
	BrowserEdge    = "Edge"
	BrowserOther   = "Other"

	ReferrerDirect  = "Direct"
	ReferrerUnknown = "Unknown"
)

func classifyDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return DeviceTablet
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "ipod") || strings.Contains(ua, "android"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// classifyBrowser: порядок важен, UA Edge содержит "chrome", UA Chrome содержит "safari"
func classifyBrowser(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/") ||
		strings.Contains(ua, "edga/") || strings.Contains(ua, "edgios/"):
		return BrowserEdge
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return BrowserOther
	case strings.Contains(ua, "chrome/") || strings.Contains(ua, "crios/") || strings.Contains(ua, "chromium/"):
		return BrowserChrome
	case strings.Contains(ua, "firefox/") || strings.Contains(ua, "fxios/"):
		return BrowserFirefox
	case strings.Contains(ua, "safari/"):
		return BrowserSafari
	default:
		return BrowserOther
	}
}

// classifyReferrer сводит Referer к имени хоста без www
func classifyReferrer(referer string) string {
	if strings.TrimSpace(referer) == "" {
		return ReferrerDirect
	}
	u, err := url.Parse(referer)
	if err != nil || u.Hostname() == "" {
		return ReferrerUnknown
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// truncateIP обнуляет хвост адреса: /24 для IPv4, /48 для IPv6
func truncateIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}

// visitorHash ключ уникальности посетителя; сам адрес не сохраняется
func visitorHash(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:16])
}
