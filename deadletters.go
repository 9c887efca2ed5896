package main

import (
	"os"

	"github.com/go-json-experiment/json"
	"gorm.io/gorm"

	"github.com/tailfeather/fedd/models"
)

type DeadLettersCmd struct {
}

func (d *DeadLettersCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}

	var letters []models.DeadLetter
	if err := db.Order("id").Find(&letters).Error; err != nil {
		return err
	}

	type letter struct {
		ID         uint32 `json:"id"`
		Inbox      string `json:"inbox"`
		ActivityID string `json:"activityId"`
		Attempts   int    `json:"attempts"`
		LastError  string `json:"lastError"`
	}
	out := make([]letter, 0, len(letters))
	for _, l := range letters {
		out = append(out, letter{
			ID:         l.ID,
			Inbox:      l.Inbox,
			ActivityID: l.ActivityID,
			Attempts:   l.Attempts,
			LastError:  l.LastError,
		})
	}
	return json.MarshalOptions{}.MarshalFull(json.EncodeOptions{
		Indent: "  ",
	}, os.Stdout, out)
}
