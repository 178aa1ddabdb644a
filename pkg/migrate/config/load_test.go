package config

import (
	"errors"
	"testing"
	"time"

	"github.com/baderkha/events-migrator/pkg/migrate/config/storecfg"
	"github.com/baderkha/events-migrator/pkg/migrate/table/colmap"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
)

const migratorYAML = `
migration_period: 10
log_file_name: migrations.log
source_table_credentials:
  host: postgres
  port: 5432
  database: source
  user: app
  password: ${SOURCE_PASSWORD}
target_table_credentials:
  host: mariadb
  database: target
  user: root
  password: ${TARGET_PASSWORD}
`

const mappingYAML = `
id: ev_id
payload: ev_payload
created_at: ev_created_at
`

func newTestLoader(files map[string]string, env map[string]string) *Loader {
	fs := afero.NewMemMapFs()
	for name, body := range files {
		_ = afero.WriteFile(fs, name, []byte(body), 0644)
	}
	l := NewLoader(fs)
	l.LookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return l
}

func TestLoadDefaultsAndMapping(t *testing.T) {
	g := NewWithT(t)
	l := newTestLoader(map[string]string{
		DefaultConfigFile:  migratorYAML,
		DefaultMappingFile: mappingYAML,
		DefaultEnvFile:     "SOURCE_PASSWORD=from-dotenv\nTARGET_PASSWORD=dotenv-target\n",
	}, map[string]string{"TARGET_PASSWORD": "from-process"})

	cfg, err := l.Load(DefaultConfigFile, DefaultMappingFile, DefaultEnvFile)
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(cfg.Period()).To(Equal(10 * time.Second))
	g.Expect(cfg.LogFormat).To(Equal(LogFormatNDJSON))
	g.Expect(cfg.ConnectRetry()).To(Equal(3 * time.Second))
	g.Expect(cfg.OnTransferFailure).To(Equal(FailureContinue))
	g.Expect(cfg.HTTP.Port).To(Equal(5000))
	g.Expect(cfg.SourceConfig.Kind).To(Equal(storecfg.Postgres))
	g.Expect(cfg.SourceConfig.Table).To(Equal("events"))
	g.Expect(cfg.SourceConfig.Password).To(Equal("from-dotenv"))
	g.Expect(cfg.Target.Kind).To(Equal(storecfg.MariaDB))
	g.Expect(cfg.Target.Port).To(Equal(3306))
	g.Expect(cfg.Target.Password).To(Equal("from-process"))
	g.Expect(cfg.Archive.Enabled()).To(BeFalse())

	g.Expect(cfg.SchemaMapping.SourceColumns()).To(Equal([]string{"id", "payload", "created_at"}))
	g.Expect(cfg.SchemaMapping.TargetColumns()).To(Equal([]string{"ev_id", "ev_payload", "ev_created_at"}))
}

func TestLoadWithoutEnvFile(t *testing.T) {
	g := NewWithT(t)
	l := newTestLoader(map[string]string{
		"cfg.yaml": migratorYAML,
		"map.yaml": mappingYAML,
	}, nil)
	cfg, err := l.Load("cfg.yaml", "map.yaml", ".env")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(cfg.SourceConfig.Password).To(BeEmpty())
}

func TestLoadEscapedDollar(t *testing.T) {
	g := NewWithT(t)
	body := migratorYAML + "\nstate_db: state$$.sqlite\n"
	l := newTestLoader(map[string]string{"cfg.yaml": body, "map.yaml": mappingYAML}, nil)
	cfg, err := l.Load("cfg.yaml", "map.yaml", "")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(cfg.StateDB).To(Equal("state$.sqlite"))
}

func TestLoadMissingFiles(t *testing.T) {
	l := newTestLoader(nil, nil)
	_, err := l.Load("nope.yaml", "map.yaml", "")
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.Error; got %v", err)
	}
}

func TestLoadAggregatesProblems(t *testing.T) {
	g := NewWithT(t)
	body := `
migration_period: 0
log_format: xml
on_transfer_failure: panic
source_table_credentials:
  type: snowflake
  account: acme
  user: u
target_table_credentials:
  type: mariadb
`
	l := newTestLoader(map[string]string{"cfg.yaml": body, "map.yaml": "id: [a, b]\n"}, nil)
	_, err := l.Load("cfg.yaml", "map.yaml", "")
	g.Expect(err).To(HaveOccurred())
	var cfgErr *Error
	g.Expect(errors.As(err, &cfgErr)).To(BeTrue())
	msg := err.Error()
	for _, fragment := range []string{
		"migration_period",
		"log_file_name is required",
		"log_format",
		"on_transfer_failure",
		"cannot be used as a source",
		"target_table_credentials: host is required",
		"schema mapping entries must be plain column names",
	} {
		g.Expect(msg).To(ContainSubstring(fragment))
	}
}

func TestLoadEmptyMapping(t *testing.T) {
	g := NewWithT(t)
	l := newTestLoader(map[string]string{"cfg.yaml": migratorYAML, "map.yaml": "# nothing mapped\n"}, nil)
	_, err := l.Load("cfg.yaml", "map.yaml", "")
	g.Expect(errors.Is(err, colmap.ErrEmpty)).To(BeTrue())
}

func TestLoadDuplicateMappingKey(t *testing.T) {
	g := NewWithT(t)
	l := newTestLoader(map[string]string{"cfg.yaml": migratorYAML, "map.yaml": "id: a\nid: b\n"}, nil)
	_, err := l.Load("cfg.yaml", "map.yaml", "")
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(ContainSubstring("id"))
}

func TestRedactedConfig(t *testing.T) {
	c := Config{SourceConfig: storecfg.Credentials{Password: "a"}, Target: storecfg.Credentials{Password: "b"}}
	r := c.Redacted()
	if r.SourceConfig.Password == "a" || r.Target.Password == "b" {
		t.Fatal("expected passwords to be redacted")
	}
}

func TestLoadStoreTypeAliases(t *testing.T) {
	g := NewWithT(t)
	body := `
migration_period: 10
log_file_name: migrations.log
source_table_credentials:
  type: postgres
  host: pg
  database: source
  user: app
target_table_credentials:
  type: maria
  host: mariadb
  database: target
  user: root
`
	l := newTestLoader(map[string]string{"cfg.yaml": body, "map.yaml": mappingYAML}, nil)
	cfg, err := l.Load("cfg.yaml", "map.yaml", "")
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(cfg.SourceConfig.Kind).To(Equal(storecfg.Postgres))
	g.Expect(cfg.SourceConfig.Port).To(Equal(5432))
	g.Expect(cfg.Target.Kind).To(Equal(storecfg.MariaDB))
	g.Expect(cfg.Target.Port).To(Equal(3306))

	src, err := cfg.SourceConfig.Resolve()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(src.Driver).To(Equal("pgx"))
	tgt, err := cfg.Target.Resolve()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(tgt.Driver).To(Equal("mysql"))
}
