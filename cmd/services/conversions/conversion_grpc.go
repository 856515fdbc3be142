package main

import (
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"affiliate-system/config"
	"affiliate-system/internal/services/affiliates/handler"
	"affiliate-system/internal/services/affiliates/store"
	"affiliate-system/proto/affiliatepb"
)

func main() {
	cfg := config.LoadConfig()

	st, db, err := store.Open(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to open affiliate store: %v", err)
	}

	cache := handler.NewRedisCache(nil)
	if db != nil {
		redisClient := config.NewRedisClient(cfg.Redis)
		defer redisClient.Close()
		cache = handler.NewRedisCache(redisClient)
	}

	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	s := grpc.NewServer()

	affiliateHandler := handler.NewAffiliateHandler(st, cache, cfg.Program, cfg.Server.AppURL)
	affiliatepb.RegisterConversionServiceServer(s, handler.NewConversionServer(affiliateHandler))

	reflection.Register(s)

	log.Printf("Conversion service listening on :%s", cfg.Server.GRPCPort)
	if err := s.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
