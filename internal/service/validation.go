package service

import (
	"crypto/rand"
	"math/big"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Константы генерации кодов
const (
	codeLength = 6
	charset    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// Известные сокращатели: повторное сокращение прячет настоящий адрес
var shortenerDomains = []string{
	"bit.ly",
	"tinyurl.com",
	"t.co",
	"goo.gl",
	"ow.ly",
	"is.gd",
	"buff.ly",
	"tiny.cc",
	"rb.gy",
	"cutt.ly",
}

var loopbackHosts = []string{"localhost", "0.0.0.0"}

var executableExtensions = map[string]bool{
	".exe": true,
	".bat": true,
	".cmd": true,
	".scr": true,
	".msi": true,
	".vbs": true,
	".jar": true,
	".apk": true,
	".dmg": true,
	".ps1": true,
	".sh":  true,
}

// urlPolicy проверяет адреса назначения
type urlPolicy struct {
	blockedDomains []string
}

func newURLPolicy(extraBlocked []string) *urlPolicy {
	blocked := make([]string, 0, len(shortenerDomains)+len(extraBlocked))
	blocked = append(blocked, shortenerDomains...)
	for _, d := range extraBlocked {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			blocked = append(blocked, d)
		}
	}
	return &urlPolicy{blockedDomains: blocked}
}

// validate возвращает ErrInvalidURL для неразборчивых адресов и ErrSuspiciousURL для запрещённых
func (p *urlPolicy) validate(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return ErrInvalidURL
	}

	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" || u.Hostname() == "" {
		return ErrInvalidURL
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if isLoopback(host) {
		return ErrSuspiciousURL
	}
	for _, domain := range p.blockedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return ErrSuspiciousURL
		}
	}
	if executableExtensions[strings.ToLower(path.Ext(u.Path))] {
		return ErrSuspiciousURL
	}

	return nil
}

func isLoopback(host string) bool {
	for _, h := range loopbackHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func validateAlias(alias string) error {
	if !aliasPattern.MatchString(alias) {
		return ErrInvalidAlias
	}
	return nil
}

// generateShortCode генерирует случайный код из 62 символов
func generateShortCode() (string, error) {
	result := make([]byte, codeLength)
	limit := big.NewInt(int64(len(charset)))
	for i := 0; i < codeLength; i++ {
		num, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		result[i] = charset[num.Int64()]
	}
	return string(result), nil
}
