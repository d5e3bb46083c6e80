package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kronigert/timsCompare/internal/server"
	"github.com/kronigert/timsCompare/internal/session"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve [dir.d]...",
	Short: "Serve the session over an HTTP JSON API",
	Long: `Starts the HTTP API on server.addr (default 127.0.0.1:8391). Directories
given as arguments are loaded before the server starts. With --watch they are
reloaded whenever their files change.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address")
	serveCmd.Flags().Bool("watch", false, "reload the initial datasets when their files change")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	ctx := cmd.Context()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var entries []*session.Entry
	if len(args) > 0 {
		if entries, err = a.load(cmd, args); err != nil {
			return err
		}
	}
	if watch {
		w, err := session.NewWatcher(a.cfg.Watch.Debounce, a.log)
		if err != nil {
			return err
		}
		defer w.Stop()
		for _, e := range entries {
			if err := w.Add(e.Path); err != nil {
				return err
			}
		}
		go a.session.Follow(ctx, w)
	}

	h := server.NewHandler(a.session, a.log)
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           server.NewRouter(h, a.cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()
	a.errOut.Info(fmt.Sprintf("serving on http://%s", srv.Addr))

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
