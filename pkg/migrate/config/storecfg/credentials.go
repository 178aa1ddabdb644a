// package storecfg
//
// connection settings for the source and target stores
package storecfg

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/baderkha/events-migrator/pkg/migrate/table"
	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"
	"github.com/xo/dburl"
)

// Kind : supported store engine
type Kind string

const (
	Postgres  Kind = "postgresql"
	MariaDB   Kind = "mariadb"
	MySQL     Kind = "mysql"
	SQLServer Kind = "sqlserver"
	Snowflake Kind = "snowflake"
	SQLite    Kind = "sqlite"
)

var kindAliases = map[string]Kind{
	"postgresql": Postgres,
	"postgres":   Postgres,
	"pg":         Postgres,
	"pgx":        Postgres,
	"mariadb":    MariaDB,
	"maria":      MariaDB,
	"mysql":      MySQL,
	"sqlserver":  SQLServer,
	"mssql":      SQLServer,
	"snowflake":  Snowflake,
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
	"file":       SQLite,
}

// ParseKind : resolves a kind or one of its aliases (case insensitive)
func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unsupported store type %q", s)
	}
	return k, nil
}

// Driver : database/sql driver name registered for the kind
func (k Kind) Driver() string {
	switch k {
	case Postgres:
		return "pgx"
	case MariaDB, MySQL:
		return "mysql"
	case SQLServer:
		return "sqlserver"
	case Snowflake:
		return "snowflake"
	case SQLite:
		return "sqlite3"
	}
	return ""
}

// CanExtract : whether the kind can be drained as a source
func (k Kind) CanExtract() bool {
	return k != Snowflake && k != ""
}

func (k Kind) defaultPort() int {
	switch k {
	case Postgres:
		return 5432
	case MariaDB, MySQL:
		return 3306
	case SQLServer:
		return 1433
	}
	return 0
}

// Credentials : how to reach one store and which table to use in it
type Credentials struct {
	Kind         Kind              `yaml:"type"`
	Host         string            `yaml:"host"`
	Port         int               `yaml:"port"`
	Database     string            `yaml:"database"`
	User         string            `yaml:"user"`
	Password     string            `yaml:"password"`
	Table        string            `yaml:"table"`
	URL          string            `yaml:"url"`
	Params       map[string]string `yaml:"params"`
	QueryLogging bool              `yaml:"query_log"`
	MaxOpenConns int               `yaml:"max_open_conns"`

	// snowflake only
	Account   string `yaml:"account"`
	Warehouse string `yaml:"warehouse"`
	Role      string `yaml:"role"`
	Schema    string `yaml:"schema"`
}

// Endpoint : everything database/sql needs to open the store
type Endpoint struct {
	Kind   Kind
	Driver string
	DSN    string
}

// ApplyDefaults : fills unset optional fields, def is the kind used when none was configured
func (c *Credentials) ApplyDefaults(def Kind) {
	if c.Kind == "" && c.URL == "" {
		c.Kind = def
	}
	// aliases become the canonical kind, unknown values are left for Validate to report
	if k, err := ParseKind(string(c.Kind)); err == nil {
		c.Kind = k
	}
	if c.Table == "" {
		c.Table = table.DefaultName
	}
	if c.Port == 0 {
		c.Port = c.Kind.defaultPort()
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 4
	}
}

// Validate : checks the credentials, every problem is reported prefixed with role
func (c *Credentials) Validate(role string) error {
	var errs error
	add := func(format string, args ...interface{}) {
		errs = multierror.Append(errs, fmt.Errorf("%s: %s", role, fmt.Sprintf(format, args...)))
	}
	if c.Kind != "" {
		if _, err := ParseKind(string(c.Kind)); err != nil {
			add("%v", err)
		}
	}
	if !table.IsQualifiedName(c.Table) {
		add("table %q is not a valid table name", c.Table)
	}
	if c.URL != "" {
		if _, err := c.Resolve(); err != nil {
			add("%v", err)
		}
		return errs
	}
	switch c.Kind {
	case SQLite:
		if c.Database == "" {
			add("database (file path) is required")
		}
	case Snowflake:
		if c.Account == "" {
			add("account is required")
		}
		if c.User == "" {
			add("user is required")
		}
	default:
		if c.Host == "" {
			add("host is required")
		}
		if c.Database == "" {
			add("database is required")
		}
		if c.User == "" {
			add("user is required")
		}
	}
	return errs
}

// Resolve : driver and dsn for the credentials, the url wins over the discrete fields
func (c *Credentials) Resolve() (Endpoint, error) {
	if c.URL != "" {
		return c.resolveURL()
	}
	kind, err := ParseKind(string(c.Kind))
	if err != nil {
		return Endpoint{}, err
	}
	dsn, err := c.GetDSN()
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Kind: kind, Driver: kind.Driver(), DSN: dsn}, nil
}

func (c *Credentials) resolveURL() (Endpoint, error) {
	u, err := dburl.Parse(c.URL)
	if err != nil {
		return Endpoint{}, fmt.Errorf("could not parse url: %w", err)
	}
	kind := c.Kind
	if kind == "" {
		kind, err = ParseKind(u.Driver)
		if err != nil {
			return Endpoint{}, err
		}
		if kind == MySQL && strings.HasPrefix(u.OriginalScheme, "maria") {
			kind = MariaDB
		}
	}
	return Endpoint{Kind: kind, Driver: kind.Driver(), DSN: u.DSN}, nil
}

// GetDSN : dsn built from the discrete fields
func (c *Credentials) GetDSN() (string, error) {
	hostPort := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	switch c.Kind {
	case Postgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     hostPort,
			Path:     "/" + c.Database,
			RawQuery: c.query().Encode(),
		}
		return u.String(), nil
	case MariaDB, MySQL:
		cfg := mysql.NewConfig()
		cfg.User = c.User
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = hostPort
		cfg.DBName = c.Database
		cfg.ParseTime = true
		cfg.Params = c.Params
		return cfg.FormatDSN(), nil
	case SQLServer:
		q := c.query()
		q.Set("database", c.Database)
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.User, c.Password),
			Host:     hostPort,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case Snowflake:
		q := c.query()
		q.Set("protocol", "https")
		q.Set("timezone", "UTC")
		if c.Role != "" {
			q.Set("role", c.Role)
		}
		if c.Warehouse != "" {
			q.Set("warehouse", c.Warehouse)
		}
		path := c.Database
		if c.Schema != "" {
			path += "/" + c.Schema
		}
		return fmt.Sprintf("%s:%s@%s.snowflakecomputing.com/%s?%s",
			url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Account, path, q.Encode()), nil
	case SQLite:
		q := c.query()
		if q.Get("_busy_timeout") == "" {
			q.Set("_busy_timeout", "10000")
		}
		if q.Get("_txlock") == "" {
			// writers take the lock at BEGIN so concurrent drains queue up instead of failing
			q.Set("_txlock", "immediate")
		}
		return "file:" + c.Database + "?" + q.Encode(), nil
	}
	return "", errors.New("no dsn format for store type " + strconv.Quote(string(c.Kind)))
}

func (c *Credentials) query() url.Values {
	q := url.Values{}
	for k, v := range c.Params {
		q.Set(k, v)
	}
	return q
}

// Redacted : copy safe to print
func (c Credentials) Redacted() Credentials {
	if c.Password != "" {
		c.Password = "*****"
	}
	if c.URL != "" {
		if u, err := url.Parse(c.URL); err == nil {
			c.URL = u.Redacted()
		}
	}
	return c
}
