package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kiesman99/bandcrop/internal/logging"
	"github.com/kiesman99/bandcrop/internal/server"
)

const version = "1.0.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the raster crop API",
	Long: `Start an HTTP server that provides a REST API for cropping rasters.

Layer paths in requests are resolved inside the data root; outputs are
written next to the rasters inside the same root.

Examples:
  # Start server on default port 8080, serving the current directory
  bandcrop serve

  # Start server on custom port with a data root
  bandcrop serve --port 3000 --root /srv/rasters

  # Start server with custom bind address
  bandcrop serve --bind 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
	serveCmd.Flags().StringP("root", "r", ".", "data root holding the rasters")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.root", serveCmd.Flags().Lookup("root"))
}

func runServe(cmd *cobra.Command, args []string) error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")

	root, err := filepath.Abs(viper.GetString("server.root"))
	if err != nil {
		return fmt.Errorf("resolve data root: %w", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("data root %s is not a directory", root)
	}

	log, err := logging.New(cmd.ErrOrStderr(), viper.GetString("log.level"))
	if err != nil {
		return err
	}
	defer log.Sync()

	opts, err := cropOptions(log)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", bind, port)

	// Create server implementation
	apiServer := server.NewServer(version, afero.NewBasePathFs(afero.NewOsFs(), root), opts)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(apiServer, timeout),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error("server shutdown", zap.Error(err))
		}
	}()

	log.Info("starting bandcrop server",
		zap.String("addr", addr),
		zap.String("root", root),
		zap.String("health", fmt.Sprintf("http://%s/api/v1/health", addr)),
		zap.String("crop", fmt.Sprintf("http://%s/api/v1/crop", addr)),
	)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
