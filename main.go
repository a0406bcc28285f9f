package main

import (
	"github.com/cppla/scoula/config"
	"github.com/cppla/scoula/models"
	"github.com/cppla/scoula/routes"
	"github.com/cppla/scoula/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.Post{}, &models.Attachment{}, &models.Member{}, &models.Auth{})

	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
