package main

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tailfeather/fedd/fed"
	"github.com/tailfeather/fedd/models"
)

type FollowCmd struct {
	Actor   string        `required:"" help:"name of the local actor following"`
	Domain  string        `required:"" help:"domain name of this server"`
	Object  string        `required:"" help:"actor to follow, as user@host or a uri"`
	Timeout time.Duration `default:"30s" help:"how long to wait for deliveries to drain"`
}

func (f *FollowCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}

	account, err := models.NewAccounts(db).Find(f.Actor)
	if err != nil {
		return err
	}

	queue := fed.NewDispatcher(db, fed.NewKeyStore(db))
	fedCtx := fed.NewContext(db, f.Domain, fed.NewResolver(), queue)

	runCtx, cancel := context.WithTimeout(context.Background(), f.Timeout)
	defer cancel()

	if err := fedCtx.SendFollow(runCtx, account, f.Object); err != nil {
		return err
	}
	return drain(runCtx, queue)
}
