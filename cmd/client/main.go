package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/tiergate/internal/client/cli"
	"github.com/dmitrijs2005/tiergate/internal/client/config"
	"github.com/dmitrijs2005/tiergate/internal/flagx"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(ctx, flagx.Positional(os.Args[1:], config.ValueFlags)); err != nil {
		log.Fatalf("%v", err)
	}

}
