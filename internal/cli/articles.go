package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"devblog/internal/apiclient"
	"devblog/internal/session"
)

func (a *App) articles(ctx context.Context, args []string) error {
	fs := a.flagSet("articles")
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", 10, "articles per page")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if *page < 1 || *size < 1 {
		return errors.New("page and size must be positive")
	}

	admin, err := a.session.IsAdmin(ctx)
	if err != nil {
		return err
	}

	var res *apiclient.ArticlePage
	if admin {
		c, err := a.api.CreateClient(ctx, a.session)
		if err != nil {
			return err
		}
		res, err = c.AdminArticles(ctx, *page, *size)
		if err != nil {
			return fmt.Errorf("listing articles: %w", err)
		}
	} else {
		c, err := a.api.Public()
		if err != nil {
			return err
		}
		res, err = c.ListArticles(ctx, *page, *size)
		if err != nil {
			return fmt.Errorf("listing articles: %w", err)
		}
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tMODE\tCATEGORIES\tTITLE")
	for _, art := range res.Articles {
		date := art.Date
		if t := art.Published(); !t.IsZero() {
			date = t.Format("2006-01-02")
		}
		mode := string(art.ViewMode)
		if mode == "" {
			mode = string(apiclient.ViewPublic)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", art.ID, date, mode, strings.Join(art.CategoryNames(), ", "), art.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Page %d of %d\n", *page, max(res.TotalPage, 1))
	return nil
}

func (a *App) upload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: blogctl upload <file>")
		return ErrUsage
	}

	c, err := a.api.CreateClient(ctx, a.session)
	if errors.Is(err, session.ErrNoSession) {
		return errNotSignedIn
	}
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(args[0])
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	u, err := c.Upload(ctx, name, contentType, f)
	if err != nil {
		return fmt.Errorf("uploading %s: %s", name, apiclient.Message(err, err.Error()))
	}
	fmt.Fprintln(a.out, u)
	return nil
}
