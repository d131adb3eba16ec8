// Package geoip resolves viewer IPs to a coarse location for view events.
// The database file is optional; without one every lookup returns empty
// strings and view events simply carry no location.
package geoip

import (
	"log/slog"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

type Resolver struct {
	db *maxminddb.Reader
}

type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// New opens the MaxMind database at dbPath. A missing or unreadable database
// disables geolocation instead of failing startup.
func New(dbPath string) *Resolver {
	if dbPath == "" {
		return &Resolver{}
	}
	db, err := maxminddb.Open(dbPath)
	if err != nil {
		slog.Warn("geoip: database unavailable, geolocation disabled", "path", dbPath, "error", err)
		return &Resolver{}
	}
	slog.Info("geoip: database loaded", "path", dbPath)
	return &Resolver{db: db}
}

func (r *Resolver) Lookup(ipStr string) (country, city string) {
	if r == nil || r.db == nil || ipStr == "" {
		return "", ""
	}
	host, _, err := net.SplitHostPort(ipStr)
	if err == nil {
		ipStr = host
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "", ""
	}
	var rec geoRecord
	if err := r.db.Lookup(ip, &rec); err != nil {
		return "", ""
	}
	return rec.Country.ISOCode, rec.City.Names["en"]
}

func (r *Resolver) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
