package main

import (
	"github.com/alecthomas/kong"
	"gorm.io/gorm"
)

type Context struct {
	Debug bool

	gorm.Dialector
	gorm.Config
}

var cli struct {
	Debug bool   `help:"Enable debug mode."`
	DSN   string `help:"data source name" default:"fedd.db"`

	Serve       ServeCmd       `cmd:"" help:"Serve the federation endpoints and deliver queued activities."`
	AutoMigrate AutoMigrateCmd `cmd:"" help:"Create or update the database schema."`
	CreateActor CreateActorCmd `cmd:"" help:"Provision a local actor with a fresh keypair."`
	Post        PostCmd        `cmd:"" help:"Publish a note to a local actor's followers."`
	Follow      FollowCmd      `cmd:"" help:"Follow a remote actor."`
	NodeInfo    NodeInfoCmd    `cmd:"" help:"Show a remote server's nodeinfo."`
	DeadLetters DeadLettersCmd `cmd:"" help:"List deliveries that failed permanently."`
}

func main() {
	ctx := kong.Parse(&cli)
	err := ctx.Run(&Context{
		Debug:     cli.Debug,
		Dialector: newDialector(cli.DSN),
	})
	ctx.FatalIfErrorf(err)
}
