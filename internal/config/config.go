// Package config parses the geofeatured CLI flags (spec.md §6's CLI surface)
// into a Config, the way the teacher's config/configs.go decodes config.xml
// into a Config struct at startup — just sourced from docopt-parsed process
// flags instead of an XML file, since the CLI is the only configuration
// surface this spec names.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/docopt/docopt-go"
)

const usage = `geofeatured.

Usage:
  geofeatured [--database=<dsn>]
              [--database_sandbox=<dsn>]...
              [--database_replica=<dsn>]...
              [--schema=<path>]
              [--auth=<path>]
              [--listen=<addr>]
              [--acquire-timeout=<seconds>]

Options:
  -h --help                      Show this screen.
  --database=<dsn>                Write-pool DSN [default: postgres@localhost/geofeatured].
  --database_sandbox=<dsn>        Sandbox read-only pool DSN. Repeatable.
  --database_replica=<dsn>        Replica read-only pool DSN. Repeatable.
  --schema=<path>                 JSON-Schema draft-04 document for feature properties.
  --auth=<path>                   Authorization policy document (external to the core).
  --listen=<addr>                 HTTP listen address [default: :8080].
  --acquire-timeout=<seconds>     Seconds to wait to acquire a pool connection [default: 5].
`

// Config is the fully-parsed process configuration.
type Config struct {
	WriteDSN       string
	SandboxDSNs    []string
	ReplicaDSNs    []string
	SchemaPath     string
	AuthPath       string
	ListenAddr     string
	AcquireTimeout time.Duration
}

// Parse parses argv (excluding the program name) into a Config.
func Parse(argv []string, version string) (*Config, error) {
	opts, err := docopt.ParseArgs(usage, argv, version)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedInput, "invalid command line", err)
	}

	cfg := &Config{}

	if v, err := opts.String("--database"); err == nil {
		cfg.WriteDSN = v
	}
	if v, err := opts.String("--schema"); err == nil {
		cfg.SchemaPath = v
	}
	if v, err := opts.String("--auth"); err == nil {
		cfg.AuthPath = v
	}
	if v, err := opts.String("--listen"); err == nil {
		cfg.ListenAddr = v
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	if v, err := opts.String("--acquire-timeout"); err == nil {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.AcquireTimeout = time.Duration(secs) * time.Second
		}
	}

	cfg.SandboxDSNs = stringSlice(opts["--database_sandbox"])
	cfg.ReplicaDSNs = stringSlice(opts["--database_replica"])

	return cfg, nil
}

func stringSlice(v interface{}) []string {
	if v == nil {
		return nil
	}
	raw, ok := v.([]string)
	if !ok {
		return nil
	}
	return raw
}

// DSN is the parsed form of a "user[:password]@host[:port]/database" DSN.
type DSN struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string
}

// ParseDSN parses the CLI's DSN shorthand into its components.
func ParseDSN(raw string) (DSN, error) {
	var d DSN

	at := strings.LastIndex(raw, "@")
	slash := strings.LastIndex(raw, "/")
	if at < 0 || slash < 0 || slash < at {
		return d, apperr.New(apperr.KindMalformedInput, fmt.Sprintf("malformed dsn %q, want user[:password]@host[:port]/database", raw))
	}

	userinfo := raw[:at]
	hostport := raw[at+1 : slash]
	d.Database = raw[slash+1:]

	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		d.User = userinfo[:colon]
		d.Password = userinfo[colon+1:]
	} else {
		d.User = userinfo
	}

	if colon := strings.LastIndex(hostport, ":"); colon >= 0 {
		d.Host = hostport[:colon]
		d.Port = hostport[colon+1:]
		if _, err := strconv.Atoi(d.Port); err != nil {
			return d, apperr.New(apperr.KindMalformedInput, fmt.Sprintf("malformed dsn port %q", d.Port))
		}
	} else {
		d.Host = hostport
		d.Port = "5432"
	}

	if d.User == "" || d.Host == "" || d.Database == "" {
		return d, apperr.New(apperr.KindMalformedInput, fmt.Sprintf("malformed dsn %q", raw))
	}

	return d, nil
}

// PostgresDSN renders the parsed DSN as a libpq keyword/value connection
// string, the form gorm's postgres driver expects — mirroring the
// fmt.Sprintf build of config.DSN in the teacher's config/configs.go.
func (d DSN) PostgresDSN() string {
	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable TimeZone=UTC",
		d.Host, d.Port, d.User, d.Database)
	if d.Password != "" {
		dsn += " password=" + d.Password
	}
	return dsn
}
