package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rosterparse/internal/config"
	"rosterparse/internal/listener"
	"rosterparse/internal/ner"
	"rosterparse/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	svc := listener.NewService(db, cfg, ner.NewLexiconRecognizer())
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("[mail-listener] starting provider=%s label=%s interval=%ds\n",
		cfg.MailListenerProvider, cfg.MailListenerLabel, cfg.MailListenerIntervalSec)
	must(svc.Run(ctx))
	fmt.Println("[mail-listener] stopped")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
