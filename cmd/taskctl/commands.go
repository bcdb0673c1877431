package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/abduss/tasktrack/internal/client"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type app struct {
	session *client.Session
	out     io.Writer
	in      io.Reader
	retry   client.RetryOptions
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: taskctl [-server URL] [-session FILE] [-v] <command> [args]

Commands:
  register -email E -name N      create an account (password is prompted)
  login -email E                 log in and store the session
  logout                         revoke and forget the session
  me                             show the current user
  status                         show local session state
  tasks list [-status S] [-search Q] [-page P] [-limit L]
  tasks add -title T [-description D] [-status S]
  tasks update <id> [-title T] [-description D] [-status S]
  tasks toggle <id>
  tasks rm <id>
  tasks bulk -status S <id>...
  tasks stats
`)
}

func (a *app) run(ctx context.Context, args []string) error {
	switch args[0] {
	case "register":
		return a.register(ctx, args[1:])
	case "login":
		return a.login(ctx, args[1:])
	case "logout":
		if err := a.session.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Logged out.")
		return nil
	case "me":
		return a.me(ctx)
	case "status":
		return a.status()
	case "tasks":
		if len(args) < 2 {
			return errors.New("tasks needs a subcommand")
		}
		return a.tasks(ctx, args[1], args[2:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *name == "" {
		return errors.New("register requires -email and -name")
	}

	password, err := a.password()
	if err != nil {
		return err
	}

	user, err := a.session.Register(ctx, *email, password, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registered %s (%s). Run 'taskctl login -email %s' next.\n", user.Email, user.ID, user.Email)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("login requires -email")
	}

	password, err := a.password()
	if err != nil {
		return err
	}

	user, err := a.session.Login(ctx, *email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s.\n", user.Name)
	return nil
}

func (a *app) me(ctx context.Context) error {
	var user client.User
	err := client.WithRetry(ctx, a.retry, func(ctx context.Context) error {
		var err error
		user, err = a.session.Profile(ctx)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s <%s>\nid: %s\nsince: %s\n", user.Name, user.Email, user.ID, user.CreatedAt.Format(time.RFC1123))
	return nil
}

func (a *app) status() error {
	if !a.session.Authenticated() {
		fmt.Fprintln(a.out, "Not logged in.")
		return nil
	}
	claims, ok := a.session.AccessClaims()
	if !ok {
		fmt.Fprintln(a.out, "Logged in (unreadable access token).")
		return nil
	}
	state := "valid"
	if client.TokenExpired(a.session.AccessToken(), time.Minute, time.Now()) {
		state = "expired, will refresh on next call"
	}
	fmt.Fprintf(a.out, "Logged in as %s, access token %s (expires %s).\n", claims.Email, state, claims.ExpiresAt.Format(time.RFC3339))
	return nil
}

func (a *app) tasks(ctx context.Context, sub string, args []string) error {
	switch sub {
	case "list":
		return a.listTasks(ctx, args)
	case "add":
		return a.addTask(ctx, args)
	case "update":
		return a.updateTask(ctx, args)
	case "toggle":
		id, err := taskID(args)
		if err != nil {
			return err
		}
		task, err := a.session.ToggleTask(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s is now %s.\n", task.Title, task.Status)
		return nil
	case "rm":
		id, err := taskID(args)
		if err != nil {
			return err
		}
		if err := a.session.DeleteTask(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Deleted.")
		return nil
	case "bulk":
		return a.bulkStatus(ctx, args)
	case "stats":
		return a.stats(ctx)
	default:
		return fmt.Errorf("unknown tasks subcommand %q", sub)
	}
}

func (a *app) listTasks(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tasks list", flag.ContinueOnError)
	var q client.TaskQuery
	fs.StringVar(&q.Status, "status", "", "PENDING, IN_PROGRESS or COMPLETED")
	fs.StringVar(&q.Search, "search", "", "title substring")
	fs.IntVar(&q.Page, "page", 1, "page number")
	fs.IntVar(&q.Limit, "limit", 10, "page size (max 100)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var page client.TaskPage
	err := client.WithRetry(ctx, a.retry, func(ctx context.Context) error {
		var err error
		page, err = a.session.ListTasks(ctx, q)
		return err
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTITLE")
	for _, t := range page.Tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Status, t.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	p := page.Pagination
	fmt.Fprintf(a.out, "page %d/%d, %d total\n", p.Page, max(p.TotalPages, 1), p.Total)
	return nil
}

func (a *app) addTask(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tasks add", flag.ContinueOnError)
	title := fs.String("title", "", "task title")
	description := fs.String("description", "", "optional description")
	status := fs.String("status", "", "initial status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" {
		return errors.New("tasks add requires -title")
	}

	input := client.TaskInput{Title: title}
	if *description != "" {
		input.Description = description
	}
	if *status != "" {
		input.Status = status
	}

	task, err := a.session.CreateTask(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created %s.\n", task.ID)
	return nil
}

func (a *app) updateTask(ctx context.Context, args []string) error {
	id, err := taskID(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("tasks update", flag.ContinueOnError)
	title := fs.String("title", "", "new title")
	description := fs.String("description", "", "new description")
	status := fs.String("status", "", "new status")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	var input client.TaskInput
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			input.Title = title
		case "description":
			input.Description = description
		case "status":
			input.Status = status
		}
	})

	task, err := a.session.UpdateTask(ctx, id, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s: %s [%s].\n", task.ID, task.Title, task.Status)
	return nil
}

func (a *app) bulkStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tasks bulk", flag.ContinueOnError)
	status := fs.String("status", "", "target status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *status == "" || fs.NArg() == 0 {
		return errors.New("tasks bulk requires -status and at least one task id")
	}

	n, err := a.session.BulkUpdateStatus(ctx, fs.Args(), *status)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %d tasks.\n", n)
	return nil
}

func (a *app) stats(ctx context.Context) error {
	var stats client.TaskStats
	err := client.WithRetry(ctx, a.retry, func(ctx context.Context) error {
		var err error
		stats, err = a.session.TaskStats(ctx)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "pending: %d\nin progress: %d\ncompleted: %d\ntotal: %d (%d%% done)\n",
		stats.Pending, stats.InProgress, stats.Completed, stats.Total, stats.CompletionRate)
	return nil
}

// password reads from the terminal without echo, or a line from a pipe.
func (a *app) password() (string, error) {
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.out, "Password: ")
		pw, err := readPassword(int(f.Fd()))
		fmt.Fprintln(a.out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func taskID(args []string) (string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", errors.New("task id required")
	}
	return args[0], nil
}
