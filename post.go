package main

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tailfeather/fedd/fed"
	"github.com/tailfeather/fedd/models"
)

type PostCmd struct {
	Actor   string        `required:"" help:"name of the local actor posting"`
	Domain  string        `required:"" help:"domain name of this server"`
	Content string        `required:"" help:"content of the note"`
	Timeout time.Duration `default:"30s" help:"how long to wait for deliveries to drain"`
}

func (p *PostCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}

	account, err := models.NewAccounts(db).Find(p.Actor)
	if err != nil {
		return err
	}

	queue := fed.NewDispatcher(db, fed.NewKeyStore(db))
	fedCtx := fed.NewContext(db, p.Domain, fed.NewResolver(), queue)

	runCtx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	obj, err := fedCtx.PublishNote(runCtx, account, p.Content)
	if err != nil {
		return err
	}
	fmt.Println(obj.URI)
	return drain(runCtx, queue)
}

// drain runs the queue until it is empty or the context expires.
// Deliveries that fail permanently land in the dead letter table and do
// not hold up the drain.
func drain(ctx context.Context, queue *fed.Dispatcher) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- queue.Run(runCtx)
	}()

	for {
		n, err := queue.Pending()
		if err != nil {
			cancel()
			<-done
			return err
		}
		if n == 0 {
			cancel()
			return <-done
		}
		select {
		case <-ctx.Done():
			<-done
			return fmt.Errorf("%d deliveries still pending: %w", n, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}
