// Package config loads the server configuration document of §6: a YAML
// or JSON file naming verbosity, the listen address, the routing script,
// and the upstream graph. Decoding goes through sigs.k8s.io/yaml, which
// converts YAML to JSON and decodes against the same `json`-tagged
// struct either way — kept from the project's config/config.go shape
// (a single Load entry point, a Duration text-unmarshaller, a
// generated-default-file fallback), generalised from TOML-only to the
// specification's YAML/JSON requirement.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semihalev/zlog/v2"
	"sigs.k8s.io/yaml"
)

// Config is the top-level document of §6.
type Config struct {
	Verbosity string `json:"verbosity"`
	Address   string `json:"address"`
	Script    string `json:"script"`

	Upstreams map[string]Upstream `json:"upstreams"`

	// AccessList gates inbound clients by CIDR, ambient per the
	// project's middleware/accesslist/accesslist.go.
	AccessList []string `json:"access_list,omitempty"`

	// AccessLog is an optional path for the ambient Common-Log-Format
	// style request log, per the project's middleware/accesslog.
	AccessLog string `json:"access_log,omitempty"`

	// MetricsAddress is decoded from the document but not read anywhere
	// else; no HTTP endpoint serves the middleware/metrics counters.
	MetricsAddress string `json:"metrics_address,omitempty"`

	sVersion string
}

// Upstream is a method object: exactly one of UDP, TLS, HTTPS, Hybrid is
// set, per §6.
type Upstream struct {
	UDP    *UDPMethod    `json:"udp,omitempty"`
	TLS    *TLSMethod    `json:"tls,omitempty"`
	HTTPS  *HTTPSMethod  `json:"https,omitempty"`
	Hybrid *HybridMethod `json:"hybrid,omitempty"`
}

// Common carries the sub-fields shared by every transport method, per §6.
type Common struct {
	Addr      string   `json:"addr,omitempty"`
	Timeout   Duration `json:"timeout,omitempty"`
	RateLimit int      `json:"ratelimit,omitempty"`
	Proxy     string   `json:"proxy,omitempty"`
}

// UDPMethod is the udp{addr,timeout} variant of §3.
type UDPMethod struct {
	Common `json:",inline"`
}

// TLSMethod is the tls{addr,sni_name,send_sni,max_reuse,timeout} variant
// of §3.
type TLSMethod struct {
	Common   `json:",inline"`
	Domain   string `json:"domain,omitempty"`
	SNI      *bool  `json:"sni,omitempty"`
	MaxReuse int    `json:"max_reuse,omitempty"`
}

// HTTPSMethod is the https{uri,addr,proxy?,ratelimit?,timeout} variant
// of §3.
type HTTPSMethod struct {
	Common `json:",inline"`
	URI    string `json:"uri"`
}

// HybridMethod is the hybrid{children:set<Tag>} variant of §3.
type HybridMethod struct {
	Children []string `json:"children"`
	Strategy string   `json:"strategy,omitempty"` // "conclusive" (default) or "fastest"
}

// ServerVersion returns the build version stamped by the caller at Load.
func (c *Config) ServerVersion() string {
	return c.sVersion
}

// Duration decodes a YAML/JSON string like "5s" into a time.Duration,
// kept from the project's config.Duration text-unmarshaller, adapted to
// satisfy json.Unmarshaler (sigs.k8s.io/yaml decodes through
// encoding/json, not encoding.TextUnmarshaler).
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "0" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", d.Duration.String())), nil
}

const defaultConfig = `# dcompass configuration.
verbosity: info
address: ":53"

upstreams:
  cloudflare:
    udp:
      addr: "1.1.1.1:53"
      timeout: 5s

script: |
  function init() {
    return {};
  }
  function route(upstreams, initTable, ctx, query) {
    return upstreams.send_default("cloudflare", query);
  }
`

// Load loads the config document at path, generating a starter file if
// absent, per the project's Load-with-default-generation convention.
func Load(path, version string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := generateConfig(path); err != nil {
			return nil, err
		}
	}

	zlog.Info("loading config file", "path", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	cfg := new(Config)
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}

	cfg.sVersion = version

	return cfg, nil
}

func generateConfig(path string) error {
	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("could not generate config: %w", err)
	}

	if abs, err := filepath.Abs(path); err == nil {
		zlog.Info("default config file generated", "config", abs)
	}

	return nil
}
