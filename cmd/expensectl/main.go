package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/client"
	"expensetracker/internal/prompt"
)

const usage = `usage: expensectl [-api URL] [-session FILE] <command> [args]

commands:
  register [username]          create an account
  login [username]             log in and remember the session
  logout                       forget the session
  whoami                       show the logged in user
  list                         list your expenses, most recent first
  add <description> <amount>   add an expense
  rm <id>                      delete an expense
  summary                      show count and total
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], prompt.New(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, client.ErrNotLoggedIn) {
			fmt.Fprintln(os.Stderr, "run `expensectl login` first")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, p *prompt.Prompter, out io.Writer) error {
	fs := flag.NewFlagSet("expensectl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	apiURL := fs.String("api", envOr("EXPENSE_API_URL", "http://localhost:8080"), "API base URL")
	sessionPath := fs.String("session", "", "session file (default: user config dir)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	if fs.NArg() == 0 {
		return errors.New(usage)
	}

	path := *sessionPath
	if path == "" {
		var err error
		if path, err = client.DefaultSessionPath(); err != nil {
			return err
		}
	}
	c := client.New(*apiURL, client.NewFileStore(path))

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "register":
		username, password, err := askCredentials(p, rest)
		if err != nil {
			return err
		}
		id, err := c.Register(ctx, username, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "registered %s (%s)\n", username, id)

	case "login":
		username, password, err := askCredentials(p, rest)
		if err != nil {
			return err
		}
		session, err := c.Login(ctx, username, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "logged in as %s until %s\n", session.Username, session.ExpiresAt.Local().Format(time.RFC1123))

	case "logout":
		if err := c.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(out, "logged out")

	case "whoami":
		me, err := c.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%s)\n", me.Username, me.UserID)

	case "list":
		expenses, err := c.ListExpenses(ctx)
		if err != nil {
			return err
		}
		if len(expenses) == 0 {
			fmt.Fprintln(out, "No expenses found. Add your first expense!")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDATE\tDESCRIPTION\tAMOUNT")
		for _, e := range expenses {
			fmt.Fprintf(tw, "%s\t%s\t%s\t$%s\n", e.ID, e.Date.Local().Format("Jan 2, 2006"), e.Description, e.Amount.StringFixed(2))
		}
		return tw.Flush()

	case "add":
		if len(rest) != 2 {
			return errors.New("usage: expensectl add <description> <amount>")
		}
		amount, err := decimal.NewFromString(rest[1])
		if err != nil {
			return fmt.Errorf("amount %q is not a number", rest[1])
		}
		e, err := c.CreateExpense(ctx, rest[0], amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "added %s: %s $%s\n", e.ID, e.Description, e.Amount.StringFixed(2))

	case "rm":
		if len(rest) != 1 {
			return errors.New("usage: expensectl rm <id>")
		}
		e, err := c.DeleteExpense(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s: %s $%s\n", e.ID, e.Description, e.Amount.StringFixed(2))

	case "summary":
		s, err := c.Summary(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d expenses, total $%s\n", s.Count, s.Total.StringFixed(2))

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	return nil
}

func askCredentials(p *prompt.Prompter, args []string) (string, string, error) {
	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		var err error
		if username, err = p.Line("Username: "); err != nil {
			return "", "", err
		}
	}
	password, err := p.Password("Password: ")
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
