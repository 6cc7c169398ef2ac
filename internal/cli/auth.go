package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"devblog/internal/apiclient"
	"devblog/internal/session"
	"devblog/internal/token"
)

var errNotSignedIn = errors.New("not signed in, run blogctl login")

func (a *App) login(ctx context.Context, args []string) error {
	fs := a.flagSet("login")
	id := fs.String("id", "", "account ID")
	pin := fs.String("pin", "", "PIN, when the account has one")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	if *id == "" {
		v, err := getText(a.in, "ID", a.out)
		if err != nil {
			return fmt.Errorf("reading id: %w", err)
		}
		*id = v
	}
	if *id == "" {
		return errors.New("id is required")
	}

	pw, err := getPassword(a.out)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	defer clear(pw)

	c, err := a.api.Public()
	if err != nil {
		return err
	}
	pair, err := c.Login(ctx, apiclient.LoginRequest{
		ID:       *id,
		Password: string(pw),
		PIN:      strings.TrimSpace(*pin),
	})
	if err != nil {
		return fmt.Errorf("login: %s", apiclient.Message(err, err.Error()))
	}
	return a.establish(ctx, pair)
}

func (a *App) oauth(ctx context.Context, args []string) error {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(a.out, "Usage: blogctl oauth <code>")
		return ErrUsage
	}

	c, err := a.api.Public()
	if err != nil {
		return err
	}
	pair, err := c.ExchangeCode(ctx, args[0])
	if err != nil {
		return fmt.Errorf("exchanging code: %s", apiclient.Message(err, err.Error()))
	}
	return a.establish(ctx, pair)
}

func (a *App) establish(ctx context.Context, pair token.Pair) error {
	if err := a.session.Establish(ctx, pair); err != nil {
		return err
	}
	p, err := a.codec.Decode(pair.AccessToken)
	if err != nil {
		fmt.Fprintln(a.out, "Signed in.")
		return nil
	}
	fmt.Fprintf(a.out, "Signed in as %s (%s).\n", p.Email, p.Role)
	return nil
}

func (a *App) logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func (a *App) whoami(ctx context.Context) error {
	p, err := a.session.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Fprintln(a.out, "Not signed in.")
		return nil
	}

	expires := time.Unix(p.Expiry, 0).Local().Format(time.RFC3339)
	if p.Expiry <= a.codec.Now().Unix() {
		expires += " (expired)"
	}
	fmt.Fprintf(a.out, "Subject: %s\nEmail:   %s\nRole:    %s\nExpires: %s\n", p.Subject, p.Email, p.Role, expires)
	return nil
}

func (a *App) printToken(ctx context.Context) error {
	tok, err := a.session.ValidToken(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return errNotSignedIn
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, tok)
	return nil
}
