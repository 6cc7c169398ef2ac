package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "DEVBLOG_"

// lookup layers real environment variables over the .env file without
// touching the process environment.
func (l Loader) lookup() (func(string) (string, bool), error) {
	env := l.LookupEnv
	if env == nil {
		env = func(string) (string, bool) { return "", false }
	}

	dotenv := map[string]string{}
	if l.DotEnv != "" {
		m, err := godotenv.Read(l.DotEnv)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading %s: %w", l.DotEnv, err)
		}
	}

	return func(key string) (string, bool) {
		if v, ok := env(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

func parseEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":                &cfg.Addr,
		"API_BASE_URL":        &cfg.APIBaseURL,
		"DB":                  &cfg.DatabasePath,
		"SESSION_SECRET":      &cfg.SessionSecret,
		"REISSUE_MODE":        &cfg.ReissueMode,
		"REISSUE_PATH":        &cfg.ReissuePath,
		"IMAGE_BASE_URL":      &cfg.ImageBaseURL,
		"DEFAULT_THUMBNAIL":   &cfg.DefaultThumbnail,
		"CODE_STYLE":          &cfg.CodeStyle,
		"TEMPLATE_DIR":        &cfg.TemplateDir,
		"LOG_LEVEL":           &cfg.LogLevel,
		"LOG_FORMAT":          &cfg.LogFormat,
		"OAUTH_AUTHORIZE_URL": &cfg.OAuth.AuthorizeURL,
		"OAUTH_APP_NAME":      &cfg.OAuth.AppName,
		"OAUTH_APP_ID":        &cfg.OAuth.AppID,
		"OAUTH_REDIRECT_URI":  &cfg.OAuth.RedirectURI,
		"OAUTH_SCOPE":         &cfg.OAuth.Scope,
		"SITE_TITLE":          &cfg.Site.Title,
		"SITE_DESCRIPTION":    &cfg.Site.Description,
		"SITE_URL":            &cfg.Site.URL,
		"SITE_AUTHOR":         &cfg.Site.Author,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"REQUEST_TIMEOUT": &cfg.RequestTimeout,
		"VISITOR_TTL":     &cfg.VisitorTTL,
	}
	for name, dst := range durations {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}

	if v, ok := lookup(envPrefix + "SECURE_COOKIES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSECURE_COOKIES: %w", envPrefix, err)
		}
		cfg.SecureCookies = b
	}
	if v, ok := lookup(envPrefix + "CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}
	if v, ok := lookup(envPrefix + "DEFAULT_CATEGORIES"); ok {
		cfg.DefaultCategories = splitList(v)
	}
	return nil
}
