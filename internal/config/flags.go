package config

import (
	"flag"
	"io"
	"time"
)

type flagValues struct {
	set        map[string]bool
	configPath string
	addr       string
	api        string
	db         string
	templates  string
	logLevel   string
	timeout    time.Duration
	rest       []string
}

// parseFlags reads:
//
//	-c, -config  YAML config file
//	-a           listen address
//	-api         API base URL
//	-db          SQLite path
//	-templates   template directory, reloaded on change
//	-log-level   debug|info|warn|error
//	-timeout     API request timeout
func parseFlags(args []string) (*flagValues, error) {
	fl := &flagValues{set: map[string]bool{}}

	fs := flag.NewFlagSet("devblog", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&fl.configPath, "c", "", "config file")
	fs.StringVar(&fl.configPath, "config", "", "config file")
	fs.StringVar(&fl.addr, "a", "", "listen address")
	fs.StringVar(&fl.api, "api", "", "API base URL")
	fs.StringVar(&fl.db, "db", "", "SQLite database path")
	fs.StringVar(&fl.templates, "templates", "", "template directory")
	fs.StringVar(&fl.logLevel, "log-level", "", "log level")
	fs.DurationVar(&fl.timeout, "timeout", 0, "API request timeout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { fl.set[f.Name] = true })
	fl.rest = fs.Args()
	return fl, nil
}

func (fl *flagValues) apply(cfg *Config) {
	if fl.set["a"] {
		cfg.Addr = fl.addr
	}
	if fl.set["api"] {
		cfg.APIBaseURL = fl.api
	}
	if fl.set["db"] {
		cfg.DatabasePath = fl.db
	}
	if fl.set["templates"] {
		cfg.TemplateDir = fl.templates
	}
	if fl.set["log-level"] {
		cfg.LogLevel = fl.logLevel
	}
	if fl.set["timeout"] {
		cfg.RequestTimeout = fl.timeout
	}
}
