package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jrsteele09/granjas-console/connectivity"
	"github.com/jrsteele09/granjas-console/console"
	"github.com/jrsteele09/granjas-console/crud"
	"github.com/jrsteele09/granjas-console/farm"
	"github.com/jrsteele09/granjas-console/internal/config"
	"github.com/jrsteele09/granjas-console/policy"
	"github.com/rs/zerolog/log"
)

type env struct {
	console *console.Console
	cfg     config.Config
	out     io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, e *env, args []string) error
}

var commands map[string]command

// init fills commands; the handlers print usages from it, so it cannot be a plain initializer.
func init() {
	commands = map[string]command{
		"login":    {"login -email <email> -password <password>", runLogin},
		"logout":   {"logout", runLogout},
		"whoami":   {"whoami", runWhoami},
		"status":   {"status", runStatus},
		"queue":    {"queue list|replay|retry <id>|discard <id>", runQueue},
		"list":     {"list <granjas|lotes|cultivos|labores|recomendaciones|insumos>", runList},
		"export":   {"export <resource> [-o file]", runExport},
		"approve":  {"approve <id> [-notes text]", runReview(true)},
		"reject":   {"reject <id> [-notes text]", runReview(false)},
		"complete": {"complete <id> [-comment text]", runComplete},
		"delete":   {"delete <resource> <id>", runDelete},
		"watch":    {"watch", runWatch},
	}
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(os.Stderr, "usage: granjas <command>")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(args []string, pos int) (int, error) {
	if len(args) <= pos {
		return 0, fmt.Errorf("missing id")
	}
	id, err := strconv.Atoi(args[pos])
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[pos])
	}
	return id, nil
}

func runLogin(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", os.Getenv("GRANJAS_EMAIL"), "account email")
	password := fs.String("password", os.Getenv("GRANJAS_PASSWORD"), "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("email and password are required")
	}
	// Probe first so a login while the backend is up replays anything left in the queue.
	e.console.Monitor.ProbeBackend(ctx)
	u, err := e.console.LoginWithPassword(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Bienvenido, %s (%s)\n", u.Name, u.DisplayRole())
	return nil
}

func runLogout(ctx context.Context, e *env, _ []string) error {
	return e.console.Logout(ctx)
}

func runWhoami(_ context.Context, e *env, _ []string) error {
	u := e.console.Sessions.CurrentUser()
	if u == nil {
		return fmt.Errorf("no active session")
	}
	return printJSON(e.out, u)
}

func runStatus(ctx context.Context, e *env, _ []string) error {
	e.console.Monitor.ProbeBackend(ctx)
	return printJSON(e.out, e.console.Status())
}

func runQueue(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", commands["queue"].usage)
	}
	q := e.console.Queue
	switch args[0] {
	case "list":
		pending, err := q.ListPending()
		if err != nil {
			return err
		}
		return printJSON(e.out, pending)
	case "replay":
		report, err := e.console.ReplayNow(ctx)
		if err != nil {
			return err
		}
		return printJSON(e.out, report)
	case "retry", "discard":
		if len(args) < 2 {
			return fmt.Errorf("missing pending write id")
		}
		if args[0] == "retry" {
			_, err := q.Retry(args[1])
			return err
		}
		return q.Discard(args[1])
	default:
		return fmt.Errorf("unknown queue command %q", args[0])
	}
}

func runList(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", commands["list"].usage)
	}
	c := e.console
	switch args[0] {
	case "granjas":
		return loadAndPrint(ctx, e, c.Farms)
	case "lotes":
		return loadAndPrint(ctx, e, c.Lots)
	case "cultivos":
		return loadAndPrint(ctx, e, c.Crops)
	case "labores":
		return loadAndPrint(ctx, e, c.Labors)
	case "recomendaciones":
		return loadAndPrint(ctx, e, c.Recommendations)
	case "insumos", "inventario":
		return loadAndPrint(ctx, e, c.Inventory)
	default:
		return fmt.Errorf("unknown resource %q", args[0])
	}
}

func loadAndPrint[T farm.Resource](ctx context.Context, e *env, ctl *crud.Controller[T]) error {
	if err := ctl.Load(ctx); err != nil {
		return err
	}
	type row struct {
		Record  T              `json:"record"`
		Actions policy.Actions `json:"actions"`
	}
	rows := make([]row, 0, len(ctl.Items()))
	for _, it := range ctl.Items() {
		rows = append(rows, row{Record: it, Actions: e.console.Decide(it)})
	}
	return printJSON(e.out, rows)
}

func runExport(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", commands["export"].usage)
	}
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("o", "", "output file (default: name sent by the server)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	f, err := os.CreateTemp(".", ".export-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	name, err := e.console.Export(ctx, args[0], f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if *out != "" {
		name = *out
	}
	if err := os.Rename(tmp, name); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Exportado a %s\n", name)
	return nil
}

func runReview(approve bool) func(ctx context.Context, e *env, args []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		id, err := parseID(args, 0)
		if err != nil {
			return err
		}
		fs := flag.NewFlagSet("review", flag.ContinueOnError)
		notes := fs.String("notes", "", "observations sent with the decision")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := e.console.Recommendations.Load(ctx); err != nil {
			return err
		}
		if approve {
			_, err = e.console.ApproveRecommendation(ctx, id, *notes)
		} else {
			_, err = e.console.RejectRecommendation(ctx, id, *notes)
		}
		return err
	}
}

func runComplete(ctx context.Context, e *env, args []string) error {
	id, err := parseID(args, 0)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("complete", flag.ContinueOnError)
	comment := fs.String("comment", "", "closing comment")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	_, err = e.console.CompleteLabor(ctx, id, *comment)
	return err
}

func runDelete(ctx context.Context, e *env, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s", commands["delete"].usage)
	}
	id, err := parseID(args, 1)
	if err != nil {
		return err
	}
	kind, ok := farm.ParseKind(args[0])
	if !ok {
		return fmt.Errorf("unknown resource %q", args[0])
	}
	c := e.console
	switch kind {
	case farm.KindFarm:
		_, err = c.DeleteFarm(ctx, id)
	case farm.KindLot:
		_, err = c.DeleteLot(ctx, id)
	case farm.KindCrop:
		_, err = c.DeleteCrop(ctx, id)
	case farm.KindLabor:
		_, err = c.DeleteLabor(ctx, id)
	case farm.KindRecommendation:
		_, err = c.DeleteRecommendation(ctx, id)
	case farm.KindInventory:
		_, err = c.DeleteSupply(ctx, id)
	default:
		return fmt.Errorf("%s cannot be deleted from the console", kind)
	}
	return err
}

func runWatch(ctx context.Context, e *env, _ []string) error {
	displayAppname(e.cfg.GetAppName())
	unsubscribe := e.console.Monitor.Subscribe(func(st connectivity.Status) {
		log.Info().Bool("network", st.NetworkOnline).Str("backend", st.BackendReachable.String()).Msg("connectivity")
	})
	defer unsubscribe()
	e.console.Start(ctx)
	<-ctx.Done()
	return nil
}

type stderrNotifier struct{}

func (stderrNotifier) Notify(n crud.Notification) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Message)
	if n.Err != nil {
		log.Debug().Err(n.Err).Msg(n.Message)
	}
}

// stdinConfirmer asks on out and reads a yes/no answer from in.
type stdinConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (s stdinConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	fmt.Fprintf(s.out, "%s [s/N] ", prompt)
	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(s.in).ReadString('\n')
		answer <- strings.ToLower(strings.TrimSpace(line))
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-answer:
		return a == "s" || a == "si" || a == "sí" || a == "y" || a == "yes", nil
	}
}
