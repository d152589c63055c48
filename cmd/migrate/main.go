package main

import (
	"log"

	"kasa-backend/internal/config"
	"kasa-backend/internal/database"
	"kasa-backend/internal/storage/postgres"
)

// Tabloları AutoMigrate ile, kasa komutlarını goose migration'ları ile kurar.
func main() {
	cfg := config.Load()
	database.Init(cfg)

	sqlDB, err := database.DB.DB()
	if err != nil {
		log.Fatalf("sql.DB alınamadı: %v", err)
	}
	defer sqlDB.Close()

	if err := postgres.Migrate(sqlDB); err != nil {
		log.Fatalf("Kasa komutları kurulamadı: %v", err)
	}
	log.Println("Kasa komutları kuruldu.")
}
