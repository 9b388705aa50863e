// Package geo определяет страну посетителя по IP через базу MaxMind.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Unknown страна, когда адрес не разобран или отсутствует в базе
const Unknown = "Unknown"

// Locator возвращает ISO-код страны для IP-адреса
type Locator interface {
	Country(ip string) string
	Close() error
}

type maxMindLocator struct {
	reader *geoip2.Reader
}

// Open открывает базу GeoLite2/GeoIP2 (City или Country)
func Open(path string) (Locator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &maxMindLocator{reader: reader}, nil
}

func (l *maxMindLocator) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Unknown
	}
	record, err := l.reader.Country(parsed)
	if err != nil || record.Country.IsoCode == "" {
		return Unknown
	}
	return record.Country.IsoCode
}

func (l *maxMindLocator) Close() error {
	return l.reader.Close()
}

type noopLocator struct{}

// NewNoop используется, когда путь к базе не задан
func NewNoop() Locator {
	return noopLocator{}
}

func (noopLocator) Country(string) string { return Unknown }

func (noopLocator) Close() error { return nil }
