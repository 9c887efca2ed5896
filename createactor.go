package main

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/tailfeather/fedd/models"
)

type CreateActorCmd struct {
	Name     string `required:"" help:"username of the actor to create"`
	Domain   string `required:"" help:"domain the actor lives on"`
	Email    string `help:"contact email address"`
	Password string `help:"password for the actor's account"`
}

func (c *CreateActorCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}

	account, err := models.NewAccounts(db).Create(c.Name, c.Domain, c.Email, c.Password)
	if err != nil {
		return err
	}
	fmt.Println(account.Actor.URI)
	return nil
}
