package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pdfshrink/internal/infrastructure/config"
	infraRepos "pdfshrink/internal/infrastructure/repositories"
	"pdfshrink/internal/interface/controllers"
)

func main() {
	// Ctrl+C отменяет текущий запуск, уже записанные результаты сохраняются
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processor := NewApplicationProcessor(ctx)
	defer processor.Shutdown()

	controller := controllers.NewCLIController(
		config.NewRepository(),
		infraRepos.NewConfigRepository(),
		processor,
		os.Stdout,
	)

	if err := controller.App().RunContext(ctx, os.Args); err != nil {
		log.Printf("Ошибка: %v", err)
		processor.Shutdown()
		stop()
		os.Exit(1)
	}
}
