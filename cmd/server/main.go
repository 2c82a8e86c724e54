// Command server runs the sync server. "server token <user-id>" prints an
// access token for that user instead.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/xdeleon/offsync/internal/server"
	"github.com/xdeleon/offsync/internal/server/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	if len(os.Args) > 2 && os.Args[1] == "token" {
		token, err := server.MintToken(cfg, os.Args[2])
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println(token)
		return
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)
}
