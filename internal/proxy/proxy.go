// Package proxy maintains the pool of upstream proxies and their health.
package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Status is the health state of a single proxy. It is owned by the Registry
// and mutated only by probe results and the disable/reinstate cooldown.
type Status int

const (
	StatusUnknown Status = iota
	StatusReachable
	StatusUnreachable
)

func (s Status) String() string {
	switch s {
	case StatusReachable:
		return "reachable"
	case StatusUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Descriptor identifies one upstream proxy. Immutable once loaded.
type Descriptor struct {
	Scheme   string // http, https or socks5
	Host     string
	Port     int
	Username string
	Password string
}

// Parse builds a Descriptor from a single proxy URI line:
// scheme://[user:pass@]host[:port].
func Parse(line string) (Descriptor, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Descriptor{}, eris.New("proxy: empty line")
	}

	u, err := url.Parse(line)
	if err != nil {
		return Descriptor{}, eris.Wrapf(err, "proxy: parse %q", line)
	}

	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return Descriptor{}, eris.Errorf("proxy: unsupported scheme %q in %q", u.Scheme, line)
	}
	if u.Hostname() == "" {
		return Descriptor{}, eris.Errorf("proxy: missing host in %q", line)
	}

	d := Descriptor{
		Scheme: u.Scheme,
		Host:   u.Hostname(),
	}
	if p := u.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &d.Port); err != nil {
			return Descriptor{}, eris.Errorf("proxy: bad port in %q", line)
		}
	}
	if u.User != nil {
		d.Username = u.User.Username()
		d.Password, _ = u.User.Password()
	}
	return d, nil
}

// URL renders the descriptor for http.Transport.Proxy.
func (d Descriptor) URL() *url.URL {
	u := &url.URL{
		Scheme: d.Scheme,
		Host:   d.Host,
	}
	if d.Port != 0 {
		u.Host = fmt.Sprintf("%s:%d", d.Host, d.Port)
	}
	if d.Username != "" {
		u.User = url.UserPassword(d.Username, d.Password)
	}
	return u
}

// Addr is the host[:port] form, used as the registry key and in logs.
// Credentials are never included.
func (d Descriptor) Addr() string {
	if d.Port != 0 {
		return fmt.Sprintf("%s:%d", d.Host, d.Port)
	}
	return d.Host
}

// LoadFile reads one proxy URI per line, skipping blank lines and logging
// (not failing on) malformed ones.
func LoadFile(path string) ([]Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "proxy: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var out []Descriptor
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d, err := Parse(line)
		if err != nil {
			zap.L().Error("proxy: skipping malformed line", zap.String("line", line), zap.Error(err))
			continue
		}
		out = append(out, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "proxy: read %s", path)
	}
	return out, nil
}
