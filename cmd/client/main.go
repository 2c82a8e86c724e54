package main

import (
	"context"
	"log"

	"github.com/xdeleon/offsync/internal/client/app"
	"github.com/xdeleon/offsync/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	a, err := app.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
