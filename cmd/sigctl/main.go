package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"sigqueue/internal/bootstrap"
	"sigqueue/internal/config"
	"sigqueue/internal/infra/db"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

type globalOptions struct {
	API string `long:"api" env:"SIGQUEUE_API" default:"http://127.0.0.1:8080" description:"admission API base URL"`
}

// app carries what every subcommand shares. Store access is behind
// openBackend so it can be swapped in tests.
type app struct {
	ctx         context.Context
	out         io.Writer
	opts        globalOptions
	openBackend func(ctx context.Context) (bootstrap.Backend, error)
	openArchive func() (*db.Store, error)
}

func newApp(ctx context.Context, out io.Writer) *app {
	cfg := config.FromEnv()
	return &app{
		ctx: ctx,
		out: out,
		openBackend: func(ctx context.Context) (bootstrap.Backend, error) {
			if cfg.StoreMode != config.StoreModeRedis {
				return nil, fmt.Errorf("store commands need STORE_MODE=%s", config.StoreModeRedis)
			}
			return bootstrap.OpenBackend(ctx, cfg, zap.NewNop())
		},
		openArchive: func() (*db.Store, error) {
			return db.NewStore(cfg, zap.NewNop())
		},
	}
}

func (a *app) parser() *flags.Parser {
	parser := flags.NewParser(&a.opts, flags.Default)
	parser.Name = "sigctl"

	_, _ = parser.AddCommand("keygen", "Generate an Ed25519 key pair", "", &keygenCommand{app: a})
	_, _ = parser.AddCommand("sign", "Sign a payload", "", &signCommand{app: a})
	_, _ = parser.AddCommand("register", "Register an account public key", "", &registerCommand{app: a})
	_, _ = parser.AddCommand("submit", "Submit a signed payload for verification", "", &submitCommand{app: a})
	_, _ = parser.AddCommand("status", "Show the verification status of a transaction", "", &statusCommand{app: a})

	stage, _ := parser.AddCommand("stage", "Inspect worker staging lists", "", &struct{}{})
	_, _ = stage.AddCommand("list", "List entries staged by a worker", "", &stageListCommand{app: a})
	_, _ = stage.AddCommand("requeue", "Move a dead worker's staged entries back onto the queue", "", &stageRequeueCommand{app: a})

	poison, _ := parser.AddCommand("poison", "Inspect poison messages", "", &struct{}{})
	_, _ = poison.AddCommand("list", "List recent poison messages", "", &poisonListCommand{app: a})
	return parser
}

func (a *app) run(args []string) error {
	_, err := a.parser().ParseArgs(args)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(ctx, os.Stdout).run(os.Args[1:]); err != nil {
		// flags.Default already printed parser errors and help.
		if _, ok := err.(*flags.Error); !ok {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}
