package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/flokr/lendhub/internal/api"
	"github.com/flokr/lendhub/internal/config"
	"github.com/flokr/lendhub/internal/db"
	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/notify"
	"github.com/flokr/lendhub/internal/reservation"
	"github.com/flokr/lendhub/internal/restriction"
	"github.com/flokr/lendhub/internal/scheduler"
	"github.com/flokr/lendhub/internal/store"
	"github.com/flokr/lendhub/internal/transfer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: lendhub <init|serve>")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		cmdInit(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\nUsage: lendhub <init|serve>\n", os.Args[1])
		os.Exit(1)
	}
}

func cmdInit(args []string) {
	cfg := config.Load()

	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dbPath := fs.String("db", cfg.DBPath, "path to SQLite database file")
	fs.Parse(args)

	if _, err := os.Stat(*dbPath); err == nil {
		fmt.Fprintf(os.Stderr, "Error: database file %s already exists\n", *dbPath)
		os.Exit(1)
	}

	database, password, err := initDatabase(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	database.Close()

	printBootstrap(*dbPath, password)
}

func cmdServe(args []string) {
	cfg := config.Load()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	dbPath := fs.String("db", cfg.DBPath, "path to SQLite database file")
	addr := fs.String("addr", cfg.Addr, "listen address")
	jwtSecret := fs.String("jwt-secret", cfg.JWTSecret, "JWT signing key (auto-generated if empty)")
	fs.Parse(args)

	// Auto-generate JWT secret if not provided.
	if *jwtSecret == "" {
		secret, err := generatePassword(32)
		if err != nil {
			log.Fatalf("Failed to generate JWT secret: %v", err)
		}
		*jwtSecret = secret
		log.Println("JWT secret auto-generated (tokens will be invalidated on restart)")
	}

	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		database, password, err := initDatabase(*dbPath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		database.Close()
		printBootstrap(*dbPath, password)
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Run migrations (idempotent).
	if err := db.Migrate(database); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Outbound gateways: AMQP when configured, logging fallback otherwise.
	var notifier notify.Notifier
	var reputation notify.Reputation
	if cfg.AMQPURL != "" {
		gateway, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("Failed to connect to AMQP: %v", err)
		}
		defer gateway.Close()
		notifier, reputation = gateway, gateway
		log.Printf("Notifications published to AMQP exchange %q", cfg.AMQPExchange)
	} else {
		gateway := notify.LogGateway{}
		notifier, reputation = gateway, gateway
		log.Println("No AMQP URL configured, notifications are logged only")
	}

	restrictions := &restriction.Service{DB: database, Notifier: notifier}
	reservations := &reservation.Service{
		DB:           database,
		Notifier:     notifier,
		Reputation:   reputation,
		Restrictions: restrictions,
	}
	transfers := &transfer.Service{DB: database, Notifier: notifier}

	runner := scheduler.NewRunner(scheduler.Jobs(scheduler.Env{
		DB:           database,
		Reservations: reservations,
		Restrictions: restrictions,
		Notifier:     notifier,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(ctx)

	handler := api.LoggingMiddleware(api.NewRouter(api.Deps{
		DB:           database,
		JWTSecret:    *jwtSecret,
		Notifier:     notifier,
		Reservations: reservations,
		Transfers:    transfers,
		Restrictions: restrictions,
		Runner:       runner,
	}))

	fmt.Printf("Server listening on %s\n", *addr)
	if err := http.ListenAndServe(*addr, handler); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func printBootstrap(dbPath, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Email: admin@lendhub.local\n")
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println()
}

// initDatabase creates a new database, runs migrations, and creates the
// admin user.
func initDatabase(path string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(database); err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("running migrations: %w", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = store.CreateUser(ctx, database, "admin@lendhub.local", "Administrator", string(hash), model.RoleAdmin)
	if err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("creating admin user: %w", err)
	}

	return database, password, nil
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
