package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"video2pdf/internal/config"
	"video2pdf/internal/engine"
	"video2pdf/internal/layout"
	"video2pdf/internal/run"
)

func main() {
	app := &cli.Command{
		Name:  "video2pdf",
		Usage: "Turn a video into printable, hole-punched binder pages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file (default: " + config.DefaultFile + " if present)",
			},
			&cli.BoolFlag{
				Name:  "ssh",
				Usage: "serve the interface over SSH",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "disable preview audio",
			},
		},
		Action:   interactiveAction,
		Commands: []*cli.Command{printCommand()},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printCommand() *cli.Command {
	return &cli.Command{
		Name:      "print",
		Usage:     "Convert one video without the interactive interface",
		ArgsUsage: "[video]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "input video"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output PDF (default: <input>.pdf)"},
			// Numeric options are strings so bad values fall back to defaults.
			&cli.StringFlag{Name: "fps", Aliases: []string{"r"}, Usage: "frames sampled per second", Value: "10"},
			&cli.StringFlag{Name: "repetitions", Aliases: []string{"n"}, Usage: "times the frame sequence is repeated", Value: "1"},
			&cli.StringFlag{Name: "per-row", Aliases: []string{"p"}, Usage: "tiles per row", Value: "1"},
		},
		Action: printAction,
	}
}

func printAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg, false); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := layout.NewChromePrinter(cfg.ChromePath)
	defer printer.Close()
	session, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	ctrl := run.New(session, engine.NewLoader(cfg.FFmpegPath, cfg.WorkDir), printer,
		run.WithNotifier(logNotifier{}),
		run.WithOutputDir(cfg.OutputDir),
		run.WithProgress(newFrameBar()),
	)

	var files []string
	if in := cmd.String("in"); in != "" {
		files = append(files, in)
	}
	files = append(files, cmd.Args().Slice()...)

	res, err := ctrl.Run(ctx, run.Request{
		Files:       files,
		FPS:         cmd.String("fps"),
		Repetitions: cmd.String("repetitions"),
		ItemsPerRow: cmd.String("per-row"),
		Output:      cmd.String("out"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("✅ %d frames, %d tiles -> %s\n", res.Frames, res.Tiles, res.Output)
	return nil
}

func interactiveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	sshMode := cmd.Bool("ssh")
	closer, err := setupLogging(cfg, !sshMode)
	if err != nil {
		return err
	}
	defer closer.Close()

	loader := engine.NewLoader(cfg.FFmpegPath, cfg.WorkDir)
	printer := layout.NewChromePrinter(cfg.ChromePath)
	defer printer.Close()

	if sshMode {
		return serveSSH(ctx, cfg, loader, printer)
	}

	session, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	m := initialModel(cfg, session, loader, printer, !cmd.Bool("quiet"))
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.closeAudio()
	}
	return err
}

func newSession(cfg *config.Config) (*run.Session, error) {
	return run.NewSession(filepath.Join(cfg.WorkDir, "session-"+uuid.NewString()[:8]))
}

// setupLogging configures the package-level logger. The terminal UI owns the
// screen, so there logs go to the configured file or nowhere.
func setupLogging(cfg *config.Config, tui bool) (io.Closer, error) {
	log.SetLevel(cfg.Level())
	log.SetReportTimestamp(true)
	if !tui {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	if cfg.LogFile == "" {
		log.SetOutput(io.Discard)
		return nopCloser{}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type logNotifier struct{}

func (logNotifier) Notify(n run.Notice) {
	switch n.Level {
	case run.Error:
		log.Error(n.Text, "state", n.State)
	case run.Success:
		log.Info(n.Text)
	default:
		log.Debug(n.Text, "state", n.State)
	}
}

// newFrameBar returns a progress callback that draws a bar sized on the
// first report.
func newFrameBar() func(done, total int) {
	var (
		once sync.Once
		bar  *progressbar.ProgressBar
	)
	return func(done, total int) {
		once.Do(func() {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("Reading frames"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionClearOnFinish(),
			)
		})
		_ = bar.Add(1)
	}
}
