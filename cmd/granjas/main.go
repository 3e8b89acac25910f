package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/granjas-console/console"
	"github.com/jrsteele09/granjas-console/internal/config"
	"github.com/jrsteele09/granjas-console/internal/logging"
	"github.com/jrsteele09/granjas-console/storage/filestore"
	"github.com/rs/zerolog/log"
)

const profileVar = "GRANJAS_PROFILE"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("godotenv.Load: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Setup(cfg.GetEnv(), cfg.GetLogLevel())

	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	store, err := filestore.Open(cfg.GetDataFolder())
	if err != nil {
		return fmt.Errorf("filestore.Open: %w", err)
	}
	defer func() { _ = store.Close() }()

	c, err := console.New(cfg, console.Deps{
		Storage:   store,
		Notifier:  stderrNotifier{},
		Confirmer: stdinConfirmer{in: in, out: os.Stderr},
	})
	if err != nil {
		return fmt.Errorf("console.New: %w", err)
	}
	defer c.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cmd.run(ctx, &env{console: c, cfg: cfg, out: out}, args[1:])
}

func loadConfig() (config.Config, error) {
	path := os.Getenv(profileVar)
	if path == "" {
		path = filepath.Join(config.New().GetDataFolder(), "profile.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
