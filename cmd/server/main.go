package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/config"
	"retailpos/backend/internal/httpapi"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
	pgstore "retailpos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatalf("migrate postgres: %v", err)
			}
		}
		if cfg.SeedDemoData {
			if err := seedDemoData(ctx, pg); err != nil {
				log.Printf("seed demo data: %v", err)
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else if cfg.SeedDemoData {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory (demo data)")
	} else {
		repo = memory.New()
		log.Println("repository: in-memory")
	}

	reportTTL := time.Duration(cfg.ReportCacheTTLSeconds) * time.Second
	reports := cache.ReportCache(cache.NewMemoryReportCache(reportTTL))
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-process report cache", err)
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("report cache: redis")
		}
	} else {
		log.Println("report cache: in-process")
	}

	svc := service.New(repo, reports, reportTTL)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("ledger backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// seedDemoData copies the in-memory demo catalog and accounts into a
// repository with an empty catalog. Accounts that already exist are kept.
func seedDemoData(ctx context.Context, repo store.Repository) error {
	existing, err := repo.ListProducts(ctx, true)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	demo := memory.NewSeeded()
	users, err := demo.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if err := repo.CreateUser(ctx, user); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("seed user %s: %w", user.Username, err)
		}
		info, err := demo.GetPayrollInfo(ctx, user.Username)
		if err != nil {
			continue
		}
		if _, err := repo.UpsertPayrollInfo(ctx, *info); err != nil {
			return fmt.Errorf("seed payroll info %s: %w", user.Username, err)
		}
	}

	products, err := demo.ListProducts(ctx, false)
	if err != nil {
		return err
	}
	for _, product := range products {
		if _, err := repo.CreateProduct(ctx, product); err != nil {
			return fmt.Errorf("seed product %s: %w", product.ID, err)
		}
	}

	customers, err := demo.ListCustomers(ctx)
	if err != nil {
		return err
	}
	for _, customer := range customers {
		if _, err := repo.CreateCustomer(ctx, customer); err != nil {
			return fmt.Errorf("seed customer %s: %w", customer.ID, err)
		}
	}

	log.Printf("seeded demo data: %d users, %d products, %d customers", len(users), len(products), len(customers))
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

var commonPINs = []string{"121212", "112233", "123123", "696969", "159753"}

// validatePINStrength rejects common, repeated and sequential PINs.
func validatePINStrength(pin string) error {
	if len(pin) < 2 {
		return errors.New("PIN too short")
	}
	if slices.Contains(commonPINs, pin) {
		return errors.New("common PIN not allowed")
	}
	if strings.Count(pin, pin[:1]) == len(pin) {
		return errors.New("repeated-digit PIN not allowed")
	}
	step := int(pin[1]) - int(pin[0])
	if step == 1 || step == -1 {
		sequential := true
		for i := 2; i < len(pin); i++ {
			if int(pin[i])-int(pin[i-1]) != step {
				sequential = false
				break
			}
		}
		if sequential {
			return errors.New("sequential PIN not allowed")
		}
	}
	return nil
}
