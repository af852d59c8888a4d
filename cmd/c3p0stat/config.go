package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/oss-evaluation-repository/swaldman-c3p0"
	"github.com/oss-evaluation-repository/swaldman-c3p0/pgxprovider"
	"github.com/oss-evaluation-repository/swaldman-c3p0/sqlprovider"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultListen  = "127.0.0.1:9187"
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
)

// fileConfig is the TOML configuration file.
//
//	driver = "postgres"
//	dsn = "postgres://app@db.example.com/orders"
//	data_source_name = "orders"
//
//	[pool]
//	maxPoolSize = 20
//	checkoutTimeout = "5s"
//
//	[users.reporting]
//	password = "secret"
//	maxPoolSize = 4
type fileConfig struct {
	Driver                             string                    `toml:"driver"`
	DSN                                string                    `toml:"dsn"`
	DataSourceName                     string                    `toml:"data_source_name"`
	Listen                             string                    `toml:"listen"`
	LogLevel                           string                    `toml:"log_level"`
	NumHelperThreads                   int                       `toml:"num_helper_threads"`
	MaxAdministrativeTaskTime          string                    `toml:"max_administrative_task_time"`
	StatementCacheDeferredCloseThreads int                       `toml:"statement_cache_deferred_close_threads"`
	Pool                               map[string]any            `toml:"pool"`
	Users                              map[string]map[string]any `toml:"users"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*fileConfig, error) {
	cfg := &fileConfig{Driver: driverPostgres, Listen: defaultListen, LogLevel: "info", NumHelperThreads: 3}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("invalid config: dsn is required")
	}
	return cfg, nil
}

func (fc *fileConfig) provider() (c3p0.Provider, error) {
	switch fc.Driver {
	case driverPostgres:
		return pgxprovider.New(fc.DSN)
	case driverMySQL:
		return sqlprovider.NewMySQL(fc.DSN)
	default:
		return nil, fmt.Errorf("invalid config: unknown driver %q", fc.Driver)
	}
}

// managerConfig builds the manager configuration. Pool settings become flat overrides and user tables become user
// overrides so they rank above properties carried by the connection string.
func (fc *fileConfig) managerConfig(provider c3p0.Provider) (*c3p0.Config, error) {
	config := c3p0.DefaultConfig(provider)
	config.DataSourceName = fc.DataSourceName
	config.NumHelperThreads = fc.NumHelperThreads
	config.StatementCacheNumDeferredCloseThreads = fc.StatementCacheDeferredCloseThreads
	if fc.MaxAdministrativeTaskTime != "" {
		d, err := time.ParseDuration(fc.MaxAdministrativeTaskTime)
		if err != nil {
			return nil, fmt.Errorf("invalid config: max_administrative_task_time: %w", err)
		}
		config.MaxAdministrativeTaskTime = d
	}

	config.Overrides = stringProps(fc.Pool)
	config.UserOverrides = make(map[string]map[string]string, len(fc.Users))
	for user, props := range fc.Users {
		props := stringProps(props)
		delete(props, "password")
		config.UserOverrides[user] = props
	}
	return config, nil
}

// credentials returns the credentials of the configured users, sorted by user.
func (fc *fileConfig) credentials() []c3p0.Credential {
	creds := make([]c3p0.Credential, 0, len(fc.Users))
	for user, props := range fc.Users {
		password, _ := props["password"].(string)
		creds = append(creds, c3p0.Credential{User: user, Password: password})
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].User < creds[j].User })
	return creds
}

func stringProps(m map[string]any) map[string]string {
	props := make(map[string]string, len(m))
	for k, v := range m {
		props[k] = fmt.Sprint(v)
	}
	return props
}
