package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/tailfeather/fedd/fed"
	"github.com/tailfeather/fedd/fed/web"
	"github.com/tailfeather/fedd/internal/group"
	"github.com/tailfeather/fedd/models"
)

type ServeCmd struct {
	Addr   string `help:"address to listen" default:"127.0.0.1:9999"`
	Domain string `required:"" help:"domain name of this server"`
}

func (s *ServeCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	if err := configureDB(db); err != nil {
		return err
	}
	if err := models.AutoMigrate(db); err != nil {
		return err
	}

	queue := fed.NewDispatcher(db, fed.NewKeyStore(db))
	fedCtx := fed.NewContext(db, s.Domain, fed.NewResolver(), queue)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", web.Router(&web.Env{DB: db, Domain: s.Domain, Fed: fedCtx}))

	g := group.New(context.Background())
	g.AddContext(queue.Run)
	g.AddContext(func(ctx context.Context) error {
		svr := &http.Server{
			Addr:         s.Addr,
			Handler:      r,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			svr.Shutdown(shutdownCtx)
		}()
		if err := svr.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return g.Wait()
}
