// Package config loads the process configuration once at start up.
// Values are layered: built in defaults, then an optional YAML file named
// by HIPP_CONFIG_FILE, then the process environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	auth "github.com/hipp-al/go-hipp-auth"
)

// FileEnvVar names the variable holding the optional YAML file path
const FileEnvVar = "HIPP_CONFIG_FILE"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	JWTSecret        string `koanf:"jwt_secret" json:"jwt_secret"`
	JWTIssuer        string `koanf:"jwt_issuer" json:"jwt_issuer"`
	JWTAudience      string `koanf:"jwt_audience" json:"jwt_audience"`
	JWTTimeout       int    `koanf:"jwt_timeout" json:"jwt_timeout"`
	JWTSigningMethod string `koanf:"jwt_signing_method" json:"jwt_signing_method"`
	JWTKeyID         string `koanf:"jwt_key_id" json:"jwt_key_id"`
	JWTPreviousKeys  string `koanf:"jwt_previous_keys" json:"jwt_previous_keys"`
	AuthContextKey   string `koanf:"auth_context_key" json:"auth_context_key"`
	AuthScheme       string `koanf:"auth_scheme" json:"auth_scheme"`

	DBDriver   string `koanf:"db_driver" json:"db_driver"`
	DBDSN      string `koanf:"db_dsn" json:"db_dsn"`
	DBServer   string `koanf:"db_server" json:"db_server"`
	DBPort     int    `koanf:"db_port" json:"db_port"`
	DBName     string `koanf:"db_name" json:"db_name"`
	DBUser     string `koanf:"db_user" json:"db_user"`
	DBPassword string `koanf:"db_password" json:"db_password"`

	HTTPAddr string `koanf:"http_addr" json:"http_addr"`
	LogDebug bool   `koanf:"log_debug" json:"log_debug"`

	PasswordMinLength              int  `koanf:"password_min_length" json:"password_min_length"`
	PasswordRequireDigit           bool `koanf:"password_require_digit" json:"password_require_digit"`
	PasswordRequireUppercase       bool `koanf:"password_require_uppercase" json:"password_require_uppercase"`
	PasswordRequireLowercase       bool `koanf:"password_require_lowercase" json:"password_require_lowercase"`
	PasswordRequireNonAlphanumeric bool `koanf:"password_require_non_alphanumeric" json:"password_require_non_alphanumeric"`
	PasswordHashCost               int  `koanf:"password_hash_cost" json:"password_hash_cost"`

	PhoneDefaultRegion string `koanf:"phone_default_region" json:"phone_default_region"`

	UserIDsFromEmail bool `koanf:"user_ids_from_email" json:"user_ids_from_email"`

	SeedAdminUsername  string `koanf:"seed_admin_username" json:"seed_admin_username"`
	SeedAdminEmail     string `koanf:"seed_admin_email" json:"seed_admin_email"`
	SeedAdminPassword  string `koanf:"seed_admin_password" json:"seed_admin_password"`
	SeedAdminFirstName string `koanf:"seed_admin_first_name" json:"seed_admin_first_name"`
	SeedAdminLastName  string `koanf:"seed_admin_last_name" json:"seed_admin_last_name"`
}

// Defaults returns the built in values, keyed the way they are read
// from the file and the environment.
func Defaults() map[string]any {
	return map[string]any{
		"jwt_secret":         "",
		"jwt_issuer":         "hipp",
		"jwt_audience":       "hipp",
		"jwt_timeout":        60,
		"jwt_signing_method": "HS256",
		"jwt_key_id":         "",
		"jwt_previous_keys":  "",
		"auth_context_key":   "user",
		"auth_scheme":        "Bearer",

		"db_driver":   DriverSQLite,
		"db_dsn":      "",
		"db_server":   "",
		"db_port":     5432,
		"db_name":     "",
		"db_user":     "",
		"db_password": "",

		"http_addr": ":8080",
		"log_debug": false,

		"password_min_length":               5,
		"password_require_digit":            false,
		"password_require_uppercase":        false,
		"password_require_lowercase":        true,
		"password_require_non_alphanumeric": false,
		"password_hash_cost":                auth.DefaultHashCost,

		"phone_default_region": auth.DefaultPhoneRegion,

		"user_ids_from_email": false,

		"seed_admin_username":   "HippAdmin",
		"seed_admin_email":      "hippadmin@hipp.com",
		"seed_admin_password":   "",
		"seed_admin_first_name": "Hipp",
		"seed_admin_last_name":  "Admin",
	}
}

// Load reads the configuration from the YAML file named by
// HIPP_CONFIG_FILE and the process environment.
func Load() (*Config, error) {
	return LoadWith(os.Getenv(FileEnvVar), EnvProvider())
}

// EnvProvider exposes the known variables of the process environment.
// JWT_SECRET becomes jwt_secret, unknown variables are dropped.
func EnvProvider() koanf.Provider {
	defaults := Defaults()
	return env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := defaults[key]; !ok {
			return ""
		}
		return key
	})
}

// LoadWith layers the defaults, the YAML file at path when set, and the
// overrides provider, then validates the result.
func LoadWith(path string, overrides koanf.Provider) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load default config")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to load config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if overrides != nil {
		if err := k.Load(overrides, nil); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to load config overrides")
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.JWTSecret, validation.Required, validation.By(c.checkSecret)),
		validation.Field(&c.JWTSigningMethod, validation.Required, validation.In("HS256", "HS384", "HS512")),
		validation.Field(&c.JWTTimeout, validation.Required, validation.Min(1)),
		validation.Field(&c.JWTPreviousKeys, validation.By(c.checkPreviousKeys)),
		validation.Field(&c.DBDriver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.DBServer, c.requiredForPostgres()...),
		validation.Field(&c.DBName, c.requiredForPostgres()...),
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.PasswordMinLength, validation.Min(0)),
		validation.Field(&c.PasswordHashCost, validation.Min(auth.MinHashCost), validation.Max(auth.MaxHashCost)),
		validation.Field(&c.PhoneDefaultRegion, validation.Required, validation.Length(2, 2)),
	)
	if verr := errors.ValidateWithOzzo(func() error { return err }, "invalid configuration"); verr != nil {
		return verr
	}
	return nil
}

// requiredForPostgres applies when the DSN has to be assembled
func (c *Config) requiredForPostgres() []validation.Rule {
	if c.DBDriver == DriverPostgres && c.DBDSN == "" {
		return []validation.Rule{validation.Required}
	}
	return nil
}

func (c *Config) checkSecret(value any) error {
	secret, _ := value.(string)
	return auth.CheckSigningKey(c.JWTSigningMethod, []byte(secret))
}

func (c *Config) checkPreviousKeys(value any) error {
	raw, _ := value.(string)
	_, err := parseKeys(raw)
	return err
}

// parseKeys reads "kid:secret,kid:secret"
func parseKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kid, secret, ok := strings.Cut(entry, ":")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("entry %q must have the form kid:secret", entry)
		}
		keys[kid] = secret
	}
	return keys, nil
}

func (c *Config) GetSigningKey() string {
	return c.JWTSecret
}

func (c *Config) GetSigningMethod() string {
	return c.JWTSigningMethod
}

func (c *Config) GetKeyID() string {
	return c.JWTKeyID
}

func (c *Config) GetPreviousSigningKeys() map[string]string {
	keys, _ := parseKeys(c.JWTPreviousKeys)
	return keys
}

func (c *Config) GetTokenExpiration() time.Duration {
	return time.Duration(c.JWTTimeout) * time.Minute
}

func (c *Config) GetIssuer() string {
	return c.JWTIssuer
}

func (c *Config) GetAudience() []string {
	var out []string
	for _, aud := range strings.Split(c.JWTAudience, ",") {
		if aud = strings.TrimSpace(aud); aud != "" {
			out = append(out, aud)
		}
	}
	return out
}

func (c *Config) GetContextKey() string {
	return c.AuthContextKey
}

func (c *Config) GetAuthScheme() string {
	return c.AuthScheme
}

func (c *Config) PasswordPolicy() auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:              c.PasswordMinLength,
		RequireDigit:           c.PasswordRequireDigit,
		RequireUppercase:       c.PasswordRequireUppercase,
		RequireLowercase:       c.PasswordRequireLowercase,
		RequireNonAlphanumeric: c.PasswordRequireNonAlphanumeric,
	}
}

func (c *Config) AdminSeed() auth.AdminSeed {
	return auth.AdminSeed{
		Username:  c.SeedAdminUsername,
		Email:     c.SeedAdminEmail,
		Password:  c.SeedAdminPassword,
		FirstName: c.SeedAdminFirstName,
		LastName:  c.SeedAdminLastName,
	}
}

// DefaultSQLiteDSN is used when DB_DSN is empty for the sqlite driver
const DefaultSQLiteDSN = "file:hipp.db?cache=shared"

// DSN returns DB_DSN, or when it is empty the sqlite default or a
// postgres URL assembled from the DB_SERVER family.
func (c *Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	if c.DBDriver != DriverPostgres {
		return DefaultSQLiteDSN
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", c.DBServer, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	if c.DBUser != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	}
	return u.String()
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = "********"
		}
	}
	mask(&out.JWTSecret)
	mask(&out.JWTPreviousKeys)
	mask(&out.DBPassword)
	mask(&out.SeedAdminPassword)
	if out.DBDSN != "" {
		if u, err := url.Parse(out.DBDSN); err == nil && u.User != nil {
			u.User = url.User(u.User.Username())
			out.DBDSN = u.String()
		}
	}
	return out
}
