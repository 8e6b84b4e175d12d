// Gridbase - metadata-driven database platform
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aethra/gridbase/internal/api"
	"github.com/aethra/gridbase/internal/ast"
	"github.com/aethra/gridbase/internal/audit"
	"github.com/aethra/gridbase/internal/auth"
	"github.com/aethra/gridbase/internal/config"
	"github.com/aethra/gridbase/internal/database"
	"github.com/aethra/gridbase/internal/engine"
	"github.com/aethra/gridbase/internal/meta"
	"github.com/aethra/gridbase/internal/models"
)

var Version = "1.0.0"

func main() {
	if len(os.Args) > 1 {
		runCLI()
		return
	}
	startServer()
}

func startServer() {
	log := newLogger()
	log.Info().Str("version", Version).Msg("gridbase starting")

	db := connectDB(log)

	if err := database.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("migrations complete")

	configService := config.NewConfigService(db)
	if err := configService.SetupDefaultConfig(); err != nil {
		log.Fatal().Err(err).Msg("failed to seed default config")
	}
	cfg := configService.LoadConfig()

	store := meta.NewStore(db, log)
	bases := engine.NewBaseManager(db, db, getEnv("ENCRYPTION_KEY", cfg.Auth.JWTSecret))
	defer bases.CloseAll()

	recorder := audit.NewRecorder(db, log)
	jwtService := auth.NewJWTService()

	deps := engine.Deps{
		Meta:      store,
		Bases:     bases,
		Builder:   ast.NewBuilder(store),
		Audit:     recorder,
		Data:      cfg.Data,
		Log:       log,
		Transform: api.NewAttachmentSigner(cfg.Auth.JWTSecret, time.Duration(cfg.Data.AttachmentExpiry)*time.Second),
	}

	router := api.SetupRouter(
		cfg,
		jwtService,
		api.NewDataHandler(deps, store, cfg, log),
		api.NewMetaHandler(store, bases, log),
		api.NewAuditHandler(recorder, store),
		api.NewAuthHandler(db, jwtService),
	)

	port := getEnv("PORT", cfg.Server.Port)
	log.Info().Str("port", port).Msg("server listening")
	if err := router.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		level = parsed
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// connectDB opens the platform database. Postgres is the production
// driver; sqlite serves local development.
func connectDB(log zerolog.Logger) *gorm.DB {
	var dialector gorm.Dialector
	switch getEnv("DB_DRIVER", "postgres") {
	case "sqlite":
		dialector = sqlite.Open(getEnv("DB_NAME", "gridbase.db"))
	default:
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			requireEnv("DB_HOST", log),
			getEnv("DB_PORT", "5432"),
			requireEnv("DB_USER", log),
			requireEnv("DB_PASSWORD", log),
			requireEnv("DB_NAME", log),
			getEnv("DB_SSLMODE", "disable"),
		)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	return db
}

func requireEnv(key string, log zerolog.Logger) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatal().Str("env", key).Msg("missing required environment variable")
	}
	return value
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// CLI
func runCLI() {
	log := newLogger()

	switch os.Args[1] {
	case "serve":
		startServer()
	case "migrate":
		db := connectDB(log)
		if err := database.RunMigrations(db); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		fmt.Println("Migrations complete")
	case "user":
		runUserCmd(log)
	default:
		printUsage()
	}
}

func printUsage() {
	fmt.Println(`Usage: gridbase <command>
Commands:
  serve                                       Start server
  migrate                                     Run migrations
  user list                                   List users
  user create --email= --password= --roles=   Create user`)
}

func runUserCmd(log zerolog.Logger) {
	if len(os.Args) < 3 {
		printUsage()
		return
	}
	db := connectDB(log)

	switch os.Args[2] {
	case "list":
		var users []models.User
		db.Find(&users)
		for _, u := range users {
			fmt.Printf("%s <%s> [%s]\n", u.FirstName+" "+u.LastName, u.Email, u.Roles)
		}
	case "create":
		email := getFlag("--email")
		password := getFlag("--password")
		if email == "" || password == "" {
			printUsage()
			return
		}
		roles := getFlag("--roles")
		if roles == "" {
			roles = auth.RoleEditor
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to hash password")
		}
		user := models.User{
			ID:           uuid.New(),
			Email:        email,
			PasswordHash: hash,
			FirstName:    getFlag("--first"),
			LastName:     getFlag("--last"),
			Roles:        roles,
			IsActive:     true,
		}
		if err := db.Create(&user).Error; err != nil {
			log.Fatal().Err(err).Msg("failed to create user")
		}
		fmt.Printf("User created: %s\n", email)
	default:
		printUsage()
	}
}

func getFlag(name string) string {
	prefix := name + "="
	for _, arg := range os.Args {
		if len(arg) > len(prefix) && arg[:len(prefix)] == prefix {
			return arg[len(prefix):]
		}
	}
	return ""
}
