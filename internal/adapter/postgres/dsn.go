package postgres

import (
	"net/url"
	"strings"
)

// hostedSuffixes identify managed Postgres providers that refuse plaintext
// connections.
var hostedSuffixes = []string{
	"amazonaws.com",
	"heroku.com",
	"herokuapp.com",
	"render.com",
	"supabase.co",
	"supabase.com",
	"neon.tech",
	"timescaledb.io",
}

// WithSSLMode returns dsn with an sslmode chosen from its host: require for
// known hosted providers, disable otherwise. An explicit sslmode is kept.
// Both URL and key=value connection strings are accepted.
func WithSSLMode(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		if q.Get("sslmode") != "" {
			return dsn
		}
		q.Set("sslmode", sslModeFor(u.Hostname()))
		u.RawQuery = q.Encode()
		return u.String()
	}

	host := ""
	for _, field := range strings.Fields(dsn) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "sslmode":
			return dsn
		case "host":
			host = strings.Trim(v, "'")
		}
	}
	return strings.TrimSpace(dsn + " sslmode=" + sslModeFor(host))
}

func sslModeFor(host string) string {
	host = strings.ToLower(host)
	for _, suffix := range hostedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return "require"
		}
	}
	return "disable"
}
