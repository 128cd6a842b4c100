package main

import (
	"log"

	"github.com/segmentio/kafka-go"

	"vittoria-system/config"
	"vittoria-system/internal/cart"
	"vittoria-system/internal/catalog"
	"vittoria-system/internal/database"
	"vittoria-system/internal/database/models"
	"vittoria-system/internal/events"
	"vittoria-system/internal/server"
	"vittoria-system/internal/utils"
)

const eventsTopic = "vittoria.events"

func main() {
	cfg := config.LoadConfig()
	utils.SetJWTSecret(cfg.Auth.JWTSecret)

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.MigrateCatalogDB(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisClient := config.NewRedisClient(cfg.Redis)

	var kafkaWriter *kafka.Writer
	if cfg.Kafka.Enabled {
		kafkaWriter = config.NewKafkaWriter(cfg.Kafka.Brokers, eventsTopic)
	}
	publisher := events.NewPublisher(kafkaWriter)
	defer publisher.Close()

	source := catalog.NewSource(db)
	cache := catalog.NewRecommendedCache(redisClient, source)
	guard := cart.NewGuard(cart.NewRedisKV(redisClient), source, publisher)

	pricingHandler := server.NewPricingHTTPHandler(source, publisher)
	cartHandler := server.NewCartHTTPHandler(guard)
	catalogHandler := server.NewCatalogHTTPHandler(source, cache)

	router := setupRouter(pricingHandler, cartHandler, catalogHandler)

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
