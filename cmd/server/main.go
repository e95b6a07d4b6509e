package main

import (
	"context"

	"github.com/danielsherratt/webchat/internal/blob"
	"github.com/danielsherratt/webchat/internal/config"
	"github.com/danielsherratt/webchat/internal/db"
	clog "github.com/danielsherratt/webchat/internal/log"
	"github.com/danielsherratt/webchat/internal/server"
	"github.com/danielsherratt/webchat/internal/service"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 负责加载配置、初始化日志、连接数据库与对象存储并启动服务。
	cfg := config.Load()
	if err := config.Validate(cfg); err != nil {
		clog.Init(cfg.Env)
		log.Fatal().Err(err).Msg("config validate")
	}
	clog.Init(cfg.Env)

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	files, err := blob.NewS3Store(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("blob store")
	}

	userSvc := service.NewUserService(gdb, cfg)
	if err := userSvc.SeedAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("seed admin")
	}

	r := server.SetupRouter(cfg, gdb, files)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
