// Package config assembles runtime settings from defaults, a YAML file, the
// environment (with an optional .env file) and command-line flags. Later
// sources win.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	ReissueEndpoint = "endpoint"
	ReissuePromote  = "promote"

	insecureSecret = "devblog-insecure-dev-secret"
)

type Config struct {
	Addr           string        `yaml:"addr"`
	APIBaseURL     string        `yaml:"api_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DatabasePath   string        `yaml:"database_path"`
	VisitorTTL     time.Duration `yaml:"visitor_ttl"`
	SessionSecret  string        `yaml:"session_secret"`
	SecureCookies  bool          `yaml:"secure_cookies"`

	ReissueMode string `yaml:"reissue_mode"`
	ReissuePath string `yaml:"reissue_path"`

	ImageBaseURL      string   `yaml:"image_base_url"`
	DefaultThumbnail  string   `yaml:"default_thumbnail"`
	CodeStyle         string   `yaml:"code_style"`
	TemplateDir       string   `yaml:"template_dir"`
	CORSOrigins       []string `yaml:"cors_origins"`
	DefaultCategories []string `yaml:"default_categories"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	OAuth   OAuth   `yaml:"oauth"`
	Site    Site    `yaml:"site"`
	Profile Profile `yaml:"profile"`
}

type OAuth struct {
	AuthorizeURL string `yaml:"authorize_url"`
	AppName      string `yaml:"app_name"`
	AppID        string `yaml:"app_id"`
	RedirectURI  string `yaml:"redirect_uri"`
	Scope        string `yaml:"scope"`
}

// Enabled reports whether sign-in goes through the OAuth provider instead of
// the local login form.
func (o OAuth) Enabled() bool {
	return o.AuthorizeURL != ""
}

// AuthorizeLink is the provider URL a visitor is sent to for sign-in.
func (o OAuth) AuthorizeLink() string {
	u, err := url.Parse(o.AuthorizeURL)
	if err != nil {
		return o.AuthorizeURL
	}
	q := u.Query()
	q.Set("app_name", o.AppName)
	q.Set("auth_scope", o.Scope)
	q.Set("redirect_uri", o.RedirectURI)
	q.Set("app_id", o.AppID)
	u.RawQuery = q.Encode()
	return u.String()
}

type Site struct {
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	URL          string `yaml:"url"`
	Author       string `yaml:"author"`
	Language     string `yaml:"language"`
	DefaultImage string `yaml:"default_image"`
}

type Profile struct {
	Name      string `yaml:"name"`
	Bio       string `yaml:"bio"`
	Image     string `yaml:"image"`
	Portfolio string `yaml:"portfolio"`
	Email     string `yaml:"email"`
	GitHub    string `yaml:"github"`
}

// LoadDefaults fills c with values that work against the public API.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.APIBaseURL = "https://api.donghyun.cc"
	c.RequestTimeout = 10 * time.Second
	c.DatabasePath = "blog.db"
	c.VisitorTTL = 30 * 24 * time.Hour
	c.SessionSecret = insecureSecret
	c.ReissueMode = ReissueEndpoint
	c.ReissuePath = "/auth/reissue"
	c.ImageBaseURL = "https://donghyuncc-cloudfront-aws.ncloud.sbs"
	c.DefaultThumbnail = "https://nanu.cc/NANU-Brand-Loader.jpg"
	c.CodeStyle = "github"
	c.DefaultCategories = []string{"전체", "소프트웨어 개발 개념", "백엔드", "AWS", "CI/CD"}
	c.LogLevel = "info"
	c.LogFormat = "json"
	c.OAuth = OAuth{Scope: `["EMAIL"]`}
	c.Site = Site{
		Title:        "동현 기술 블로그",
		Description:  "소프트웨어 개발과 인프라에 대한 기록",
		URL:          "https://donghyun.cc",
		Author:       "Donghyun",
		Language:     "ko",
		DefaultImage: "https://nanu.cc/NANU-Brand-Loader.jpg",
	}
	c.Profile = Profile{
		Name:      "Donghyun",
		Bio:       "Backend developer",
		Portfolio: "https://donghyun.cc",
		GitHub:    "https://github.com",
	}
}

// InsecureSecret reports whether the sealing secret was left at its default.
func (c *Config) InsecureSecret() bool {
	return c.SessionSecret == insecureSecret
}

func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.APIBaseURL); err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("api base url %q must be absolute", c.APIBaseURL))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.ReissueMode != ReissueEndpoint && c.ReissueMode != ReissuePromote {
		errs = append(errs, fmt.Errorf("unknown reissue mode %q", c.ReissueMode))
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("session secret is empty"))
	}
	if len(c.DefaultCategories) == 0 {
		errs = append(errs, errors.New("default categories are empty"))
	}
	return errors.Join(errs...)
}

// AllCategory is the first default category. Selecting it lists every article.
func (c *Config) AllCategory() string {
	if len(c.DefaultCategories) == 0 {
		return ""
	}
	return c.DefaultCategories[0]
}

// Loader reads configuration from explicit sources so tests can swap them.
type Loader struct {
	Args      []string
	LookupEnv func(string) (string, bool)
	DotEnv    string
}

// Load reads the process arguments, environment and ./.env.
func Load(args []string) (*Config, error) {
	return Loader{Args: args, LookupEnv: os.LookupEnv, DotEnv: ".env"}.Load()
}

// LoadCommand is Load for tools whose flags are followed by a subcommand.
// It also returns the arguments left after the flags.
func LoadCommand(args []string) (*Config, []string, error) {
	return Loader{Args: args, LookupEnv: os.LookupEnv, DotEnv: ".env"}.load()
}

func (l Loader) Load() (*Config, error) {
	cfg, _, err := l.load()
	return cfg, err
}

func (l Loader) load() (*Config, []string, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	fl, err := parseFlags(l.Args)
	if err != nil {
		return nil, nil, err
	}

	lookup, err := l.lookup()
	if err != nil {
		return nil, nil, err
	}

	path := fl.configPath
	if path == "" {
		path, _ = lookup(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := parseYAML(cfg, path); err != nil {
			return nil, nil, err
		}
	}

	if err := parseEnv(cfg, lookup); err != nil {
		return nil, nil, err
	}
	fl.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, fl.rest, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
