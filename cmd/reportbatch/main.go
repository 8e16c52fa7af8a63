// Command reportbatch runs one batch of report generation and exits. It is
// the entrypoint for external cron infrastructure; the long-running server
// in cmd/server carries its own in-process scheduler instead.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/dmitrijs2005/insightly/internal/server"
	"github.com/dmitrijs2005/insightly/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	summary, err := app.Service().RunBatch(ctx)
	if err != nil {
		log.Printf("batch run failed: %v", err)
		os.Exit(1)
	}

	out, _ := json.Marshal(summary)
	log.Printf("batch summary: %s", out)

	if summary.Failed > 0 {
		os.Exit(2)
	}
}
