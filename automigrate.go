package main

import (
	"gorm.io/gorm"

	"github.com/tailfeather/fedd/models"
)

type AutoMigrateCmd struct {
}

func (a *AutoMigrateCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	return models.AutoMigrate(db)
}
