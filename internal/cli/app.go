// Package cli implements blogctl, a terminal client for the blog API that
// keeps its tokens in the same storage and session stack as the web server.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"devblog/internal/apiclient"
	"devblog/internal/session"
	"devblog/internal/storage"
	"devblog/internal/token"
)

// ErrUsage is returned when the command line cannot be understood. Usage has
// already been printed.
var ErrUsage = errors.New("usage error")

const usage = `Usage: blogctl [flags] <command> [args]

Commands:
  login [-id ID] [-pin PIN]    sign in with ID and password
  oauth <code>                 sign in with an OAuth authorization code
  logout                       forget the stored tokens
  whoami                       show the signed-in account
  token                        print a valid access token, reissuing if needed
  articles [-page N] [-size N] list articles (all of them when signed in as admin)
  upload <file>                upload a file and print its URL
`

type App struct {
	api     *apiclient.Factory
	session *session.Session
	codec   *token.Codec
	in      *bufio.Reader
	out     io.Writer
}

// NewApp builds the CLI over store, where the token pair is kept.
func NewApp(api *apiclient.Factory, sessions *session.Manager, store storage.Storage, in io.Reader, out io.Writer) *App {
	return &App{
		api:     api,
		session: sessions.Session(token.NewStore(store)),
		codec:   sessions.Codec(),
		in:      bufio.NewReader(in),
		out:     out,
	}
}

// Run executes one command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return a.login(ctx, rest)
	case "oauth":
		return a.oauth(ctx, rest)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami(ctx)
	case "token":
		return a.printToken(ctx)
	case "articles":
		return a.articles(ctx, rest)
	case "upload":
		return a.upload(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprintf(a.out, "Unknown command: %s\n\n%s", cmd, usage)
		return ErrUsage
	}
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}
