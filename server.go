package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"

	"video2pdf/internal/config"
	"video2pdf/internal/engine"
	"video2pdf/internal/layout"
)

const shutdownTimeout = 30 * time.Second

// serveSSH hands every SSH session its own run session and controller. The
// engine loader and printer are shared.
func serveSSH(ctx context.Context, cfg *config.Config, loader *engine.Loader, printer layout.Printer) error {
	s, err := wish.NewServer(
		wish.WithAddress(cfg.SSH.Addr),
		wish.WithHostKeyPath(cfg.SSH.HostKeyPath),
		wish.WithMiddleware(
			bubbletea.Middleware(teaHandler(cfg, loader, printer)),
			activeterm.Middleware(),
			logging.Middleware(),
		),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	log.Info("Starting SSH server", "addr", cfg.SSH.Addr)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Could not start server", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Stopping SSH server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		log.Error("Could not stop server", "error", err)
		return err
	}
	return nil
}

func teaHandler(cfg *config.Config, loader *engine.Loader, printer layout.Printer) bubbletea.Handler {
	return func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
		session, err := newSession(cfg)
		if err != nil {
			wish.Fatalln(s, "could not create session:", err)
			return nil, nil
		}
		go func() {
			<-s.Context().Done()
			if err := session.Close(); err != nil {
				log.Warn("closing session", "user", s.User(), "err", err)
			}
		}()

		// Audio would play on the server, not the client.
		m := initialModel(cfg, session, loader, printer, false)
		pty, _, _ := s.Pty()
		m.width, m.height = pty.Window.Width, pty.Window.Height
		return m, []tea.ProgramOption{tea.WithAltScreen()}
	}
}
