package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"portal/internal/accounts"
	"portal/internal/platform/config"
	httptransport "portal/internal/transport/http"
	dErrors "portal/pkg/domain-errors"
	"portal/pkg/requestcontext"
)

// run executes one command and returns the process exit code.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, in io.Reader, out io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Fprint(out, usage)
		return 0
	}

	ctx = requestcontext.WithRequestID(ctx, uuid.NewString())
	a, err := newApp(ctx, cfg, logger, out)
	if err != nil {
		logger.ErrorContext(ctx, "startup failed", "error", err)
		return 1
	}
	defer a.close()

	switch cmd {
	case "login":
		err = a.login(ctx, rest, in)
	case "logout":
		err = a.logout(ctx)
	case "status":
		err = a.status(ctx)
	case "register":
		err = a.register(ctx, rest)
	case "profile":
		err = a.profileCmd(ctx, rest)
	case "todo":
		err = a.todoCmd(ctx, rest)
	case "serve":
		err = a.serve(ctx)
	default:
		fmt.Fprintf(out, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err != nil {
		printError(out, err)
		return 1
	}
	return 0
}

func printError(out io.Writer, err error) {
	var de *dErrors.Error
	if errors.As(err, &de) && len(de.Fields) > 0 {
		fmt.Fprintf(out, "error: %s\n", de.Message)
		for field, msgs := range de.Fields {
			fmt.Fprintf(out, "  %s: %s\n", field, strings.Join(msgs, "; "))
		}
		return
	}
	fmt.Fprintf(out, "error: %v\n", err)
}

func (a *app) start(ctx context.Context) error {
	_, err := a.manager.Start(ctx)
	return err
}

func (a *app) login(ctx context.Context, args []string, in io.Reader) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.out)
	username := fs.String("username", "", "account username")
	password := fs.String("password", "", "account password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		*password = strings.TrimRight(line, "\r\n")
	}

	if err := a.start(ctx); err != nil {
		return err
	}
	resp, err := a.accounts.ObtainToken(ctx, accounts.Credentials{Username: *username, Password: *password})
	if err != nil {
		return err
	}
	return a.manager.Login(ctx, resp.Access, resp.Refresh)
}

func (a *app) logout(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		return err
	}
	return a.manager.Logout(ctx)
}

func (a *app) status(ctx context.Context) error {
	snap, err := a.manager.Start(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "state: %s\n", snap.State)
	if claims, ok := a.manager.Claims(); ok {
		fmt.Fprintf(a.out, "user id: %d\n", claims.UserID)
		if exp := claims.ExpiresAt(); !exp.IsZero() {
			fmt.Fprintf(a.out, "access token expires: %s\n", exp.Format(time.RFC3339))
		}
	}
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(a.out)
	var reg accounts.Registration
	fs.StringVar(&reg.Username, "username", "", "username")
	fs.StringVar(&reg.Email, "email", "", "email address")
	fs.StringVar(&reg.Password, "password", "", "password")
	fs.StringVar(&reg.FullName, "full-name", "", "full name")
	fs.StringVar(&reg.PhoneNumber, "phone", "", "phone number")
	fs.StringVar(&reg.DateOfBirth, "dob", "", "date of birth (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := a.accounts.Register(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created user %d (%s)\n", user.ID, user.Username)
	return nil
}

func (a *app) profileCmd(ctx context.Context, args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	if err := a.start(ctx); err != nil {
		return err
	}

	switch sub {
	case "show":
		user, err := a.profile.Get(ctx)
		if err != nil {
			return err
		}
		return printJSON(a.out, user)
	case "update":
		fs := flag.NewFlagSet("profile update", flag.ContinueOnError)
		fs.SetOutput(a.out)
		var update accounts.UserUpdate
		fs.Func("email", "new email", setString(&update.Email))
		fs.Func("username", "new username", setString(&update.Username))
		fs.Func("full-name", "new full name", setString(&update.FullName))
		fs.Func("phone", "new phone number", setString(&update.PhoneNumber))
		fs.Func("dob", "new date of birth (YYYY-MM-DD)", setString(&update.DateOfBirth))
		if err := fs.Parse(args); err != nil {
			return err
		}
		user, err := a.profile.Update(ctx, update)
		if err != nil {
			return err
		}
		return printJSON(a.out, user)
	case "delete":
		fs := flag.NewFlagSet("profile delete", flag.ContinueOnError)
		fs.SetOutput(a.out)
		id := fs.Int64("id", 0, "user id (defaults to the signed-in user)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := a.profile.DeleteAccount(ctx, *id); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "account deleted")
		return nil
	default:
		return fmt.Errorf("unknown profile command %q", sub)
	}
}

func setString(dst **string) func(string) error {
	return func(v string) error {
		*dst = &v
		return nil
	}
}

func (a *app) todoCmd(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	if err := a.start(ctx); err != nil {
		return err
	}

	switch sub {
	case "list":
		items, err := a.todo.List(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			mark := " "
			if item.Completed {
				mark = "x"
			}
			fmt.Fprintf(a.out, "[%s] %d %s", mark, item.ID, item.Title)
			if item.Description != "" {
				fmt.Fprintf(a.out, " - %s", item.Description)
			}
			fmt.Fprintln(a.out)
		}
		return nil
	case "add":
		fs := flag.NewFlagSet("todo add", flag.ContinueOnError)
		fs.SetOutput(a.out)
		title := fs.String("title", "", "title (required)")
		description := fs.String("description", "", "description")
		if err := fs.Parse(args); err != nil {
			return err
		}
		item, err := a.todo.Create(ctx, *title, *description)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "added %d\n", item.ID)
		return nil
	case "done", "undo":
		id, err := parseID(args)
		if err != nil {
			return err
		}
		_, err = a.todo.SetCompleted(ctx, id, sub == "done")
		return err
	case "rm":
		id, err := parseID(args)
		if err != nil {
			return err
		}
		return a.todo.Delete(ctx, id)
	default:
		return fmt.Errorf("unknown todo command %q", sub)
	}
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "expected exactly one todo id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid todo id")
	}
	return id, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// serve keeps one manager alive next to the status server until ctx ends.
func (a *app) serve(ctx context.Context) error {
	snap, err := a.manager.Start(ctx)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "session ready", "state", snap.State.String())

	opts := []httptransport.Option{httptransport.WithLogger(a.logger)}
	for _, c := range a.checks {
		opts = append(opts, httptransport.WithHealthCheck(c.name, c.check))
	}
	srv := httptransport.NewServer(a.cfg.HTTP.Addr, httptransport.NewRouter(httptransport.New(a.manager, opts...)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.InfoContext(gctx, "status server listening", "addr", a.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
