package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=kasa port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string

	// Gün/hafta/ay sınırları ve bayat oturum kontrolü bu takvime göre
	BusinessTimezone string
	Location         *time.Location

	CashMaxAmount         int64
	DiscrepancyWarning    int64
	DiscrepancyCritical   int64
	DiscrepancyMax        int64
	StrictCloseValidation bool

	KafkaBrokers []string // boşsa olaylar sadece bu süreç içinde dağıtılır
	KafkaTopic   string
	KafkaGroupID string
}

func Load() *Config {
	// .env yoksa sorun değil, ortam değişkenleri kullanılır
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] .env okunamadı: %v", err)
	}

	cfg := &Config{
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:           getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		CORSOrigins:           getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		BusinessTimezone:      getEnv("BUSINESS_TIMEZONE", "Europe/Istanbul"),
		CashMaxAmount:         getEnvInt64("CASH_MAX_AMOUNT", 10_000_000),
		DiscrepancyWarning:    getEnvInt64("DISCREPANCY_WARNING", 5_000),
		DiscrepancyCritical:   getEnvInt64("DISCREPANCY_CRITICAL", 20_000),
		DiscrepancyMax:        getEnvInt64("DISCREPANCY_MAX", 100_000),
		StrictCloseValidation: getEnvBool("STRICT_CLOSE_VALIDATION", false),
		KafkaBrokers:          splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "cash-session-events"),
		KafkaGroupID:          getEnv("KAFKA_GROUP_ID", ""),
	}

	// Production güvenlik kontrolleri
	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] JWT_SECRET environment değişkeni tanımlanmamış! Production için zorunludur.")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET en az 32 karakter olmalıdır! Güvenlik riski.")
	}
	if cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN varsayılan değer kullanılıyor, production için mutlaka kendi Postgres bağlantı bilgisini tanımla.")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS varsayılan değer kullanılıyor, production için mutlaka kendi domain'ini tanımla.")
	}

	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		log.Fatalf("[FATAL] BUSINESS_TIMEZONE geçersiz (%s): %v", cfg.BusinessTimezone, err)
	}
	cfg.Location = loc

	if !(cfg.DiscrepancyWarning > 0 && cfg.DiscrepancyWarning < cfg.DiscrepancyCritical && cfg.DiscrepancyCritical < cfg.DiscrepancyMax) {
		log.Fatal("[FATAL] DISCREPANCY_WARNING < DISCREPANCY_CRITICAL < DISCREPANCY_MAX olmalıdır.")
	}
	if cfg.CashMaxAmount <= 0 {
		log.Fatal("[FATAL] CASH_MAX_AMOUNT pozitif olmalıdır.")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaGroupID == "" {
		// her node kendi grubunu kullanmalı ki tüm olayları alsın
		host, _ := os.Hostname()
		cfg.KafkaGroupID = "kasa-" + host
		log.Printf("[WARN] KAFKA_GROUP_ID tanımlı değil, %q kullanılıyor.", cfg.KafkaGroupID)
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		log.Printf("[WARN] %s sayı değil (%q), varsayılan %d kullanılıyor.", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[WARN] %s true/false olmalı (%q), varsayılan %v kullanılıyor.", key, v, def)
		return def
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
