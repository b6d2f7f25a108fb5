package database

import (
	"fmt"
	"log"

	"insaat-backend/internal/config"
	"insaat-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init Postgres bağlantısını açar ve migration'ları çalıştırır.
func Init(cfg *config.Config) *gorm.DB {
	db, err := Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Veritabanına bağlanılamadı: %v", err)
	}

	if err := Migrate(db); err != nil {
		log.Fatalf("Migration hatası: %v", err)
	}

	DB = db
	log.Println("Veritabanı bağlantısı başarılı. Migration tamamlandı.")
	return db
}

func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), GormConfig())
}

// GormConfig tüm dialect'ler için ortak ayarlar. TranslateError unique
// ihlallerini gorm.ErrDuplicatedKey'e çevirir.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.BudgetCategory{},
		&models.ProjectTransaction{},
		&models.TransactionSequence{},
		&models.BudgetAlert{},
		&models.ProjectSavings{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("AutoMigrate hatası: %w", err)
	}

	// Proje başına, tip başına tek aktif uyarı (AutoMigrate partial index üretmiyor)
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_budget_alerts_active
		ON budget_alerts (project_id, alert_type)
		WHERE is_active
	`).Error; err != nil {
		return fmt.Errorf("uq_budget_alerts_active oluşturulamadı: %w", err)
	}

	return nil
}
