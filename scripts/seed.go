//go:build ignore

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/familiar-chat/mediagate/internal/auth"
	"github.com/familiar-chat/mediagate/internal/database"
	"github.com/familiar-chat/mediagate/internal/database/models"
	"github.com/familiar-chat/mediagate/pkg/config"
	"github.com/familiar-chat/mediagate/pkg/util"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	orgID := envOr("SEED_ORG_ID", "org-"+uuid.NewString()[:8])
	userID := "user-" + uuid.NewString()[:8]
	visitorID := "visitor-" + uuid.NewString()[:8]
	userAccount := "uid-" + uuid.NewString()[:8]
	visitorAccount := "vid-" + uuid.NewString()[:8]

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.FirstOrCreate(&models.Organization{Node: models.Node{ID: orgID}, Name: "Seed Organization"}).Error; err != nil {
			return fmt.Errorf("creating organization: %w", err)
		}
		if err := tx.Create(&models.User{ID: userID, OrganizationID: orgID, Name: "Seed Agent", Role: "master"}).Error; err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		if err := tx.Create(&models.Visitor{ID: visitorID, OrganizationID: orgID, Name: "Seed Visitor"}).Error; err != nil {
			return fmt.Errorf("creating visitor: %w", err)
		}
		memberships := []models.Membership{
			{AccountID: userAccount, OrganizationID: orgID, Role: models.RoleUser, PrincipalID: &userID},
			{AccountID: visitorAccount, OrganizationID: orgID, Role: models.RoleVisitor, PrincipalID: &visitorID},
		}
		if err := tx.Create(&memberships).Error; err != nil {
			return fmt.Errorf("creating memberships: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry())
	userToken, err := jwtService.GenerateToken(userAccount, nil)
	if err != nil {
		log.Fatalf("failed to sign user token: %v", err)
	}
	visitorToken, err := jwtService.GenerateToken(visitorAccount, nil)
	if err != nil {
		log.Fatalf("failed to sign visitor token: %v", err)
	}

	fmt.Println("Seed data created")
	fmt.Printf("  organization: %s\n", orgID)
	fmt.Printf("  user:         %s (account %s)\n", userID, userAccount)
	fmt.Printf("  visitor:      %s (account %s)\n", visitorID, visitorAccount)
	fmt.Printf("\nUSER_TOKEN=%s\n", userToken)
	fmt.Printf("VISITOR_TOKEN=%s\n", visitorToken)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
