package c3p0

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

const (
	MarkSessionBoundariesAlways             = "always"
	MarkSessionBoundariesNever              = "never"
	MarkSessionBoundariesIfNoStatementCache = "if-no-statement-cache"
)

// PoolConfig holds the tunables of one sub-pool. Every field can be overridden per user.
type PoolConfig struct {
	MinPoolSize      int
	MaxPoolSize      int
	InitialPoolSize  int
	AcquireIncrement int

	// AcquireRetryAttempts is the number of attempts to open a connection before an acquisition fails. 0 or less
	// retries forever.
	AcquireRetryAttempts     int
	AcquireRetryDelay        time.Duration
	BreakAfterAcquireFailure bool

	// CheckoutTimeout bounds how long Checkout waits. 0 waits indefinitely.
	CheckoutTimeout time.Duration

	// ConnectionIsValidTimeout bounds the built-in validity check. 0 is unbounded.
	ConnectionIsValidTimeout time.Duration

	IdleConnectionTestPeriod     time.Duration
	MaxIdleTime                  time.Duration
	MaxIdleTimeExcessConnections time.Duration
	MaxConnectionAge             time.Duration

	// PropertyCycle is the period of the expiration sweep. 0 derives it from the expiration settings.
	PropertyCycle time.Duration

	UnreturnedConnectionTimeout          time.Duration
	DebugUnreturnedConnectionStackTraces bool

	ForceSynchronousCheckins  bool
	TestConnectionOnCheckout  bool
	TestConnectionOnCheckin   bool
	AttemptResurrectOnCheckin bool

	MaxStatements              int
	MaxStatementsPerConnection int

	// MarkSessionBoundaries is one of the MarkSessionBoundaries* constants.
	MarkSessionBoundaries string

	AutomaticTestTable string
	PreferredTestQuery string

	// ConnectionTesterName and ConnectionCustomizerName are looked up in the Manager's Registry.
	ConnectionTesterName     string
	ConnectionCustomizerName string
}

// DefaultPoolConfig returns the default tunables.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinPoolSize:           3,
		MaxPoolSize:           15,
		InitialPoolSize:       3,
		AcquireIncrement:      3,
		AcquireRetryAttempts:  30,
		AcquireRetryDelay:     time.Second,
		MarkSessionBoundaries: MarkSessionBoundariesAlways,
	}
}

// Config is the configuration of a Manager. Create one with DefaultConfig and modify it rather than constructing it
// from scratch.
type Config struct {
	Provider Provider

	// Pool holds the default tunables of every sub-pool.
	Pool PoolConfig

	// UserOverrides maps a user name to property overrides for that user's sub-pool. It has the highest precedence.
	UserOverrides map[string]map[string]string

	// Overrides are property overrides for every sub-pool. They rank below UserOverrides and above the provider's own
	// properties. The user and password properties, or overrideDefaultUser and overrideDefaultPassword, set the default
	// credential.
	Overrides map[string]string

	// Registry resolves tester, customizer and task runner factory names. nil means NewRegistry().
	Registry *Registry

	NumHelperThreads                      int
	MaxAdministrativeTaskTime             time.Duration
	StatementCacheNumDeferredCloseThreads int
	TaskRunnerFactoryName                 string

	// DataSourceName labels the manager in logs and statistics.
	DataSourceName string

	Logger   tracelog.Logger
	LogLevel tracelog.LogLevel

	createdByDefaultConfig bool
}

// DefaultConfig returns a Config for provider with default settings.
func DefaultConfig(provider Provider) *Config {
	return &Config{
		Provider:               provider,
		Pool:                   DefaultPoolConfig(),
		NumHelperThreads:       3,
		createdByDefaultConfig: true,
	}
}

// Copy returns a deep copy of the config that is safe to use and modify. The only exception is Provider, Registry and
// Logger, which are shared.
func (c *Config) Copy() *Config {
	newConfig := new(Config)
	*newConfig = *c
	if c.UserOverrides != nil {
		newConfig.UserOverrides = make(map[string]map[string]string, len(c.UserOverrides))
		for user, props := range c.UserOverrides {
			newConfig.UserOverrides[user] = copyProps(props)
		}
	}
	newConfig.Overrides = copyProps(c.Overrides)
	return newConfig
}

func copyProps(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type propertyKind int

const (
	intProperty propertyKind = iota
	boolProperty
	stringProperty
	secondsProperty
	millisProperty
)

type property struct {
	kind  propertyKind
	field func(*PoolConfig) any
}

// poolProperties are the per-user properties by name. Duration properties accept Go durations or bare integers in the
// unit the property has always used.
var poolProperties = map[string]property{
	"minPoolSize":                          {intProperty, func(c *PoolConfig) any { return &c.MinPoolSize }},
	"maxPoolSize":                          {intProperty, func(c *PoolConfig) any { return &c.MaxPoolSize }},
	"initialPoolSize":                      {intProperty, func(c *PoolConfig) any { return &c.InitialPoolSize }},
	"acquireIncrement":                     {intProperty, func(c *PoolConfig) any { return &c.AcquireIncrement }},
	"acquireRetryAttempts":                 {intProperty, func(c *PoolConfig) any { return &c.AcquireRetryAttempts }},
	"acquireRetryDelay":                    {millisProperty, func(c *PoolConfig) any { return &c.AcquireRetryDelay }},
	"breakAfterAcquireFailure":             {boolProperty, func(c *PoolConfig) any { return &c.BreakAfterAcquireFailure }},
	"checkoutTimeout":                      {millisProperty, func(c *PoolConfig) any { return &c.CheckoutTimeout }},
	"connectionIsValidTimeout":             {secondsProperty, func(c *PoolConfig) any { return &c.ConnectionIsValidTimeout }},
	"idleConnectionTestPeriod":             {secondsProperty, func(c *PoolConfig) any { return &c.IdleConnectionTestPeriod }},
	"maxIdleTime":                          {secondsProperty, func(c *PoolConfig) any { return &c.MaxIdleTime }},
	"maxIdleTimeExcessConnections":         {secondsProperty, func(c *PoolConfig) any { return &c.MaxIdleTimeExcessConnections }},
	"maxConnectionAge":                     {secondsProperty, func(c *PoolConfig) any { return &c.MaxConnectionAge }},
	"propertyCycle":                        {secondsProperty, func(c *PoolConfig) any { return &c.PropertyCycle }},
	"unreturnedConnectionTimeout":          {secondsProperty, func(c *PoolConfig) any { return &c.UnreturnedConnectionTimeout }},
	"debugUnreturnedConnectionStackTraces": {boolProperty, func(c *PoolConfig) any { return &c.DebugUnreturnedConnectionStackTraces }},
	"forceSynchronousCheckins":             {boolProperty, func(c *PoolConfig) any { return &c.ForceSynchronousCheckins }},
	"testConnectionOnCheckout":             {boolProperty, func(c *PoolConfig) any { return &c.TestConnectionOnCheckout }},
	"testConnectionOnCheckin":              {boolProperty, func(c *PoolConfig) any { return &c.TestConnectionOnCheckin }},
	"attemptResurrectOnCheckin":            {boolProperty, func(c *PoolConfig) any { return &c.AttemptResurrectOnCheckin }},
	"maxStatements":                        {intProperty, func(c *PoolConfig) any { return &c.MaxStatements }},
	"maxStatementsPerConnection":           {intProperty, func(c *PoolConfig) any { return &c.MaxStatementsPerConnection }},
	"markSessionBoundaries":                {stringProperty, func(c *PoolConfig) any { return &c.MarkSessionBoundaries }},
	"automaticTestTable":                   {stringProperty, func(c *PoolConfig) any { return &c.AutomaticTestTable }},
	"preferredTestQuery":                   {stringProperty, func(c *PoolConfig) any { return &c.PreferredTestQuery }},
	"connectionTesterName":                 {stringProperty, func(c *PoolConfig) any { return &c.ConnectionTesterName }},
	"connectionCustomizerName":             {stringProperty, func(c *PoolConfig) any { return &c.ConnectionCustomizerName }},
}

// PoolPropertyNames returns the names of every per-user property.
func PoolPropertyNames() []string {
	names := make([]string, 0, len(poolProperties))
	for name := range poolProperties {
		names = append(names, name)
	}
	return names
}

// SetProperty parses value and assigns it to the property name of c.
func (c *PoolConfig) SetProperty(name, value string) error {
	prop, ok := poolProperties[name]
	if !ok {
		return &ConfigurationError{Property: name, Msg: "unknown property"}
	}

	value = strings.TrimSpace(value)
	var err error
	switch ptr := prop.field(c).(type) {
	case *int:
		*ptr, err = strconv.Atoi(value)
	case *bool:
		*ptr, err = strconv.ParseBool(value)
	case *string:
		*ptr = value
	case *time.Duration:
		unit := time.Second
		if prop.kind == millisProperty {
			unit = time.Millisecond
		}
		*ptr, err = ParseDurationProperty(value, unit)
	}
	if err != nil {
		return &ConfigurationError{Property: name, Msg: fmt.Sprintf("cannot parse %q", value), Err: err}
	}
	return nil
}

// ParseDurationProperty parses s as a Go duration such as "30s", or as a bare integer count of unit.
func ParseDurationProperty(s string, unit time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * unit, nil
	}
	return time.ParseDuration(s)
}

// validate checks sizes and normalizes InitialPoolSize and MarkSessionBoundaries.
func (c *PoolConfig) validate(ctx context.Context, logger tracelog.Leveled) error {
	for name, n := range map[string]int{
		"minPoolSize":                c.MinPoolSize,
		"maxPoolSize":                c.MaxPoolSize,
		"initialPoolSize":            c.InitialPoolSize,
		"maxStatements":              c.MaxStatements,
		"maxStatementsPerConnection": c.MaxStatementsPerConnection,
	} {
		if n < 0 {
			return &ConfigurationError{Property: name, Msg: "must not be negative"}
		}
	}
	for name, d := range map[string]time.Duration{
		"acquireRetryDelay":            c.AcquireRetryDelay,
		"checkoutTimeout":              c.CheckoutTimeout,
		"connectionIsValidTimeout":     c.ConnectionIsValidTimeout,
		"idleConnectionTestPeriod":     c.IdleConnectionTestPeriod,
		"maxIdleTime":                  c.MaxIdleTime,
		"maxIdleTimeExcessConnections": c.MaxIdleTimeExcessConnections,
		"maxConnectionAge":             c.MaxConnectionAge,
		"propertyCycle":                c.PropertyCycle,
		"unreturnedConnectionTimeout":  c.UnreturnedConnectionTimeout,
	} {
		if d < 0 {
			return &ConfigurationError{Property: name, Msg: "must not be negative"}
		}
	}
	if c.MaxPoolSize < 1 {
		return &ConfigurationError{Property: "maxPoolSize", Msg: "must be at least 1"}
	}
	if c.MinPoolSize > c.MaxPoolSize {
		return &ConfigurationError{Property: "minPoolSize", Msg: fmt.Sprintf("%d exceeds maxPoolSize %d", c.MinPoolSize, c.MaxPoolSize)}
	}
	if c.AcquireIncrement < 1 {
		c.AcquireIncrement = 1
	}
	c.InitialPoolSize = max(c.MinPoolSize, min(c.InitialPoolSize, c.MaxPoolSize))

	switch c.MarkSessionBoundaries {
	case MarkSessionBoundariesAlways, MarkSessionBoundariesNever, MarkSessionBoundariesIfNoStatementCache:
	default:
		logger.Log(ctx, tracelog.LogLevelWarn, "unsupported markSessionBoundaries value, using always", map[string]any{"markSessionBoundaries": c.MarkSessionBoundaries})
		c.MarkSessionBoundaries = MarkSessionBoundariesAlways
	}
	return nil
}

// resolvePoolConfig builds the tunables for cred. Each property comes from the first of the user's overrides, the flat
// overrides, and the provider's own properties that defines it, falling back to c.Pool.
func (c *Config) resolvePoolConfig(ctx context.Context, cred Credential, logger tracelog.Leveled) (PoolConfig, error) {
	resolved := c.Pool
	userProps := c.UserOverrides[cred.User]
	source, _ := c.Provider.(PropertySource)

	for name := range poolProperties {
		value, ok := userProps[name]
		if !ok {
			value, ok = c.Overrides[name]
		}
		if !ok && source != nil {
			value, ok = source.PoolProperty(name)
		}
		if !ok {
			continue
		}
		if err := resolved.SetProperty(name, value); err != nil {
			return PoolConfig{}, err
		}
	}

	if err := resolved.validate(ctx, logger); err != nil {
		return PoolConfig{}, err
	}
	return resolved, nil
}

// configuredDefaultCredential returns the default credential named by the flat overrides or the provider.
func (c *Config) configuredDefaultCredential() Credential {
	for _, keys := range [][2]string{{"overrideDefaultUser", "overrideDefaultPassword"}, {"user", "password"}} {
		user, hasUser := c.Overrides[keys[0]]
		password, hasPassword := c.Overrides[keys[1]]
		if hasUser || hasPassword {
			return Credential{User: user, Password: password}
		}
	}
	if d, ok := c.Provider.(DefaultCredentialer); ok {
		return d.DefaultCredential()
	}
	return Credential{}
}
