package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/courseforge/courseforge-backend/internal/app"
	"github.com/courseforge/courseforge-backend/internal/executors"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if strings.EqualFold(strings.TrimSpace(os.Getenv("EXECUTOR_MODE")), "stub") {
		a.Log.Warn("registering stub executors; stage output will be placeholder data")
		executors.RegisterStubs(a.Services.Registry)
	}

	a.Start()

	a.Log.Info("Server listening", "port", a.Cfg.Port)
	if err := a.Run(); err != nil {
		a.Log.Error("Server failed", "error", err)
	}
}
