package serve

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pioneerstudio/patternshop/cmd/internal"
	"github.com/pioneerstudio/patternshop/web"
	"github.com/spf13/cobra"
)

var release bool

// ServeCmd runs the HTTP API until the process is interrupted.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the storefront, admin, webhook and cron API.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt := internal.From(cmd)
		if release {
			gin.SetMode(gin.ReleaseMode)
		}
		opts := []web.Option{web.WithLogger(rt.Log)}
		if rt.Files != nil {
			opts = append(opts, web.WithFiles(rt.Files))
		}
		srv := &http.Server{
			Addr:              rt.Settings.Server.Addr,
			Handler:           web.New(rt.Shop, opts...).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errs := make(chan error, 1)
		go func() {
			rt.Log.Info("listening", "addr", srv.Addr)
			errs <- srv.ListenAndServe()
		}()

		select {
		case err := <-errs:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-cmd.Context().Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), rt.Settings.Server.ShutdownTimeout)
		defer cancel()
		rt.Log.Info("shutting down", "timeout", rt.Settings.Server.ShutdownTimeout)
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
		internal.Done(cmd, "server stopped")
		return nil
	},
}

func init() {
	ServeCmd.Flags().BoolVar(&release, "release", false, "run gin in release mode")
}
