// Command sheetserver serves the order sheet API from a local workbook, for
// development and store-room machines without network access to the web app.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/five82/orderdesk/internal/sheetserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	workbook := flag.String("workbook", os.Getenv("SHEETSERVER_WORKBOOK"), "xlsx or xls workbook to serve (optional, starts empty)")
	addr := flag.String("addr", envOr("SHEETSERVER_ADDR", "127.0.0.1:8080"), "listen address")
	rate := flag.String("rate", envOr("SHEETSERVER_RATE", sheetserver.DefaultRate), `request rate limit such as "60-M", or "off"`)
	save := flag.String("save", os.Getenv("SHEETSERVER_SAVE"), "write the workbook here after every change (optional)")
	flag.Parse()

	logger := log.New(os.Stderr, "sheetserver: ", log.LstdFlags)
	gin.SetMode(gin.ReleaseMode)

	wb := sheetserver.NewWorkbook()
	if *workbook != "" {
		loaded, err := sheetserver.LoadWorkbook(*workbook)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sheetserver: %v\n", err)
			return 1
		}
		wb = loaded
	}

	srv, err := sheetserver.New(wb, sheetserver.Options{Rate: *rate, SavePath: *save, Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sheetserver: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on http://%s/exec", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("serve: %v", err)
		return 1
	}
	return 0
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
