package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] no .env file found, using environment variables")
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// register adds the application subcommands.
func register(c *subcommands.Commander) {
	c.Register(&averageCmd{}, "prices")
	c.Register(&fluctuationCmd{}, "prices")
	c.Register(&backtestCmd{}, "returns")
	c.Register(&turnoverCmd{}, "returns")
	c.Register(&indexCmd{}, "index")
	c.Register(&cacheCmd{}, "index")
	c.Register(&serveCmd{}, "")
}
