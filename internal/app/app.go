package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/kobzarvs/gapedit/internal/align"
	"github.com/kobzarvs/gapedit/internal/config"
	"github.com/kobzarvs/gapedit/internal/contig"
	"github.com/kobzarvs/gapedit/internal/join"
	"github.com/kobzarvs/gapedit/internal/logger"
	"github.com/kobzarvs/gapedit/internal/metrics"
	"github.com/kobzarvs/gapedit/internal/notify"
	"github.com/kobzarvs/gapedit/internal/session"
	"github.com/kobzarvs/gapedit/internal/store"
	"github.com/kobzarvs/gapedit/internal/store/sqlite"
)

var ErrUsage = errors.New("usage: gapedit <import|info|complement|join|undo-demo> [flags]")

// App is the top-level runtime for gapedit.
type App struct {
	args   []string
	stdout io.Writer
	stderr io.Writer
}

func New(args []string) *App {
	return &App{args: args, stdout: os.Stdout, stderr: os.Stderr}
}

// SetOutput redirects command output and flag errors.
func (a *App) SetOutput(stdout, stderr io.Writer) {
	a.stdout = stdout
	a.stderr = stderr
}

func (a *App) Run() error {
	return a.RunContext(context.Background())
}

// env is what every command works with.
type env struct {
	cfg      config.Config
	store    *sqlite.Store
	bus      *notify.Bus
	views    *session.Manager
	registry *session.Registry
	out      io.Writer
}

type command struct {
	flags func(fs *flag.FlagSet) func(ctx context.Context, e *env, args []string) error
	// readOnly commands open contigs without write access.
	readOnly bool
}

var commands = map[string]command{
	"import":     {flags: importFlags},
	"info":       {flags: infoFlags, readOnly: true},
	"complement": {flags: complementFlags},
	"join":       {flags: joinFlags},
	"undo-demo":  {flags: undoDemoFlags},
}

func (a *App) RunContext(ctx context.Context) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(a.args) == 0 {
		return ErrUsage
	}
	name := a.args[0]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q: %w", name, ErrUsage)
	}

	fs := flag.NewFlagSet("gapedit "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	dbPath := fs.String("db", cfg.Store.Path, "sqlite database `file`")
	debug := fs.Bool("debug", cfg.Log.Debug, "log at debug level")
	run := cmd.flags(fs)
	if err := fs.Parse(a.args[1:]); err != nil {
		return err
	}

	if err := logger.Init(*debug); err != nil {
		return err
	}
	defer logger.Close()
	logger.Info("gapedit started", "command", name, "db", *dbPath)

	s, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.Close()) }()

	views, err := session.NewManager(15 * time.Second)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, views.Stop()) }()

	opts := contig.OptionsFromConfig(cfg.Editor)
	opts.ReadOnly = cmd.readOnly
	bus := notify.New()
	abs, aerr := filepath.Abs(*dbPath)
	if aerr != nil {
		abs = *dbPath
	}
	e := &env{
		cfg:      cfg,
		store:    s,
		bus:      bus,
		views:    views,
		registry: session.NewRegistry(s, abs, opts, bus, views),
		out:      a.stdout,
	}
	defer e.registry.CloseAll()

	if cfg.Metrics.File != "" {
		defer func() {
			if werr := metrics.WriteFile(cfg.Metrics.File); werr != nil {
				logger.Warn("writing metrics", "file", cfg.Metrics.File, "err", werr)
			}
		}()
	}

	if err := run(ctx, e, fs.Args()); err != nil {
		logger.Error("command failed", "command", name, "err", err)
		return err
	}
	return nil
}

// open opens an editor on contig id and returns its database.
func (e *env) open(ctx context.Context, id int) (*contig.DB, error) {
	h, err := e.registry.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.registry.DB(h)
}

func (e *env) joiner() *join.Joiner {
	return join.New(align.New(e.cfg.Align), e.bus, e.cfg.Join)
}

func importFlags(fs *flag.FlagSet) func(context.Context, *env, []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("import needs a TOML file: %w", ErrUsage)
		}
		for _, path := range args {
			f, err := config.LoadImport(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			ids, err := store.Import(ctx, e.store, f)
			if err != nil {
				return err
			}
			for i, id := range ids {
				fmt.Fprintf(e.out, "imported contig %d (%s)\n", id, f.Contigs[i].Name)
			}
		}
		return nil
	}
}

func infoFlags(fs *flag.FlagSet) func(context.Context, *env, []string) error {
	id := fs.Int("contig", 0, "contig `number`; 0 lists every contig")
	reads := fs.Bool("reads", false, "list readings")
	consensus := fs.Bool("consensus", false, "print the consensus")
	return func(ctx context.Context, e *env, _ []string) error {
		n, err := e.store.NumContigs(ctx)
		if err != nil {
			return err
		}
		from, to := 1, n
		if *id != 0 {
			from, to = *id, *id
		}
		for c := from; c <= to; c++ {
			db, err := e.open(ctx, c)
			if err != nil {
				return err
			}
			printContig(e.out, db, *reads, *consensus)
		}
		return nil
	}
}

func printContig(w io.Writer, db *contig.DB, reads, consensus bool) {
	cons, _ := db.Record(0)
	fmt.Fprintf(w, "contig %d: length %d, %d readings, %d tags, %d notes\n",
		db.ContigID, db.ConsensusLength(), db.NumReadings(), len(cons.Tags()), len(db.Notes()))
	if reads {
		for _, seq := range db.Order() {
			r, err := db.Record(seq)
			if err != nil {
				continue
			}
			dir := "+"
			if r.Complemented {
				dir = "-"
			}
			fmt.Fprintf(w, "  %-16s %6d %6d %s tags=%d\n", r.Name, r.RelPos, r.Length, dir, len(r.Tags()))
		}
	}
	if consensus {
		fmt.Fprintf(w, "  %s\n", db.Consensus(1, db.ConsensusLength()))
	}
}

func complementFlags(fs *flag.FlagSet) func(context.Context, *env, []string) error {
	id := fs.Int("contig", 1, "contig `number`")
	return func(ctx context.Context, e *env, _ []string) error {
		db, err := e.open(ctx, *id)
		if err != nil {
			return err
		}
		if err := db.Complement(ctx); err != nil {
			return err
		}
		if err := db.Save(ctx); err != nil {
			return err
		}
		printContig(e.out, db, false, false)
		return nil
	}
}

func joinFlags(fs *flag.FlagSet) func(context.Context, *env, []string) error {
	left := fs.Int("left", 1, "left contig `number`")
	right := fs.Int("right", 2, "right contig `number`")
	offset := fs.Int("offset", 0, "left column of the right contig's first column, minus one")
	from := fs.Int("from", 0, "anchor the overlap at this left `column`")
	to := fs.Int("to", 0, "end the overlap at this left `column`")
	noAlign := fs.Bool("no-align", false, "join at the offset without aligning the overlap")
	return func(ctx context.Context, e *env, _ []string) error {
		l, err := e.open(ctx, *left)
		if err != nil {
			return err
		}
		r, err := e.open(ctx, *right)
		if err != nil {
			return err
		}
		j := e.joiner()
		at := *offset
		if !*noAlign {
			plan, err := j.Align(ctx, l, r, join.Request{Offset: *offset, From: *from, To: *to})
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "aligned %s: identity %.3f, %d pads, offset %d\n",
				plan.Result.Method, plan.Result.Identity, plan.Pads, plan.Offset)
			at = plan.Offset
		}
		id, err := j.Join(ctx, l, r, at)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "joined contig %d into contig %d\n", *right, id)
		printContig(e.out, l, false, false)
		return nil
	}
}

func undoDemoFlags(fs *flag.FlagSet) func(context.Context, *env, []string) error {
	id := fs.Int("contig", 1, "contig `number`")
	reading := fs.String("reading", "", "reading `name`; empty edits the consensus")
	pos := fs.Int("pos", 1, "insert before this `position`")
	bases := fs.String("insert", "*", "`bases` to insert")
	save := fs.Bool("save", false, "save the edit instead of undoing it")
	return func(ctx context.Context, e *env, _ []string) error {
		db, err := e.open(ctx, *id)
		if err != nil {
			return err
		}
		seq := 0
		if *reading != "" {
			var ok bool
			if seq, ok = db.Lookup(*reading); !ok {
				return fmt.Errorf("%w: reading %q in contig %d", contig.ErrNotFound, *reading, *id)
			}
		}
		show := func(label string) {
			fmt.Fprintf(e.out, "%-7s %s\n", label, db.Consensus(1, db.ConsensusLength()))
		}

		show("before")
		out, err := db.InsertBases(seq, *pos, []byte(strings.ToUpper(*bases)))
		if err != nil {
			return err
		}
		show("edited")
		if out == contig.AppliedNotUndoable {
			fmt.Fprintln(e.out, "edit is not undoable")
			return nil
		}
		if *save {
			return db.Save(ctx)
		}
		if err := db.Undo(); err != nil {
			return err
		}
		show("undone")
		if err := db.Redo(); err != nil {
			return err
		}
		show("redone")
		return db.Undo()
	}
}
