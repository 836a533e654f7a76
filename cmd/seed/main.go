// Package main seeds stores and users from a YAML file.
//
// Running it twice with the same file is a no-op: stores are keyed by
// storefront domain and users by email. The whole file is applied in one
// transaction.
//
//	seed -file stores.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/imc400/shopify-market-place/internal/config"
	"github.com/imc400/shopify-market-place/internal/domain"
	"github.com/imc400/shopify-market-place/internal/infrastructure"
	"github.com/imc400/shopify-market-place/internal/pkg/logger"
	"github.com/imc400/shopify-market-place/internal/pkg/secret"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	file := pflag.StringP("file", "f", "stores.yaml", "seed file")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	seed, err := parseSeedFile(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", *file, err)
	}

	box, err := secret.NewBox(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("init token box: %w", err)
	}

	ctx := context.Background()
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	// Schema migrations are expected to have run; seeding only writes rows.
	logger.Info("Starting data seeding...", zap.String("file", *file))
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stats, err := apply(ctx, db.Queries.WithTx(tx), box, seed)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}
	logger.Info("Data seeding completed successfully",
		zap.Int("stores", stats.stores),
		zap.Int("users", stats.users),
		zap.Int("subscriptions", stats.subscriptions),
	)
	return nil
}

type seedFile struct {
	Stores []seedStore `yaml:"stores"`
	Users  []seedUser  `yaml:"users"`
}

type seedStore struct {
	Name          string   `yaml:"name"`
	ShopifyDomain string   `yaml:"shopify_domain"`
	AccessToken   string   `yaml:"access_token"`
	Description   string   `yaml:"description"`
	Logo          string   `yaml:"logo"`
	Categories    []string `yaml:"categories"`
	// Active defaults to true when omitted.
	Active *bool `yaml:"active"`
}

type seedUser struct {
	Email       string `yaml:"email"`
	Name        string `yaml:"name"`
	DeviceToken string `yaml:"device_token"`
	// SubscribeTo lists storefront domains from the same file.
	SubscribeTo []string `yaml:"subscribe_to"`
}

func parseSeedFile(r io.Reader) (*seedFile, error) {
	var seed seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	domains := make(map[string]bool, len(seed.Stores))
	for i, s := range seed.Stores {
		switch {
		case strings.TrimSpace(s.Name) == "":
			return nil, fmt.Errorf("stores[%d]: name is required", i)
		case strings.TrimSpace(s.ShopifyDomain) == "":
			return nil, fmt.Errorf("stores[%d]: shopify_domain is required", i)
		case domains[s.ShopifyDomain]:
			return nil, fmt.Errorf("stores[%d]: duplicate shopify_domain %q", i, s.ShopifyDomain)
		}
		domains[s.ShopifyDomain] = true
	}
	for i, u := range seed.Users {
		if strings.TrimSpace(u.Email) == "" {
			return nil, fmt.Errorf("users[%d]: email is required", i)
		}
		for _, d := range u.SubscribeTo {
			if !domains[d] {
				return nil, fmt.Errorf("users[%d]: unknown store %q in subscribe_to", i, d)
			}
		}
	}
	return &seed, nil
}

// seeder is the repository surface used for seeding.
type seeder interface {
	UpsertStore(ctx context.Context, s domain.Store, sealedToken []byte) (string, error)
	UpsertUser(ctx context.Context, u domain.User) (string, error)
	Subscribe(ctx context.Context, userID, storeID string) (string, error)
}

type sealer interface {
	Seal(plaintext []byte) ([]byte, error)
}

type seedStats struct {
	stores        int
	users         int
	subscriptions int
}

func apply(ctx context.Context, repo seeder, box sealer, seed *seedFile) (seedStats, error) {
	var stats seedStats
	storeIDs := make(map[string]string, len(seed.Stores))

	for _, s := range seed.Stores {
		var sealed []byte
		if s.AccessToken != "" {
			var err error
			if sealed, err = box.Seal([]byte(s.AccessToken)); err != nil {
				return stats, fmt.Errorf("seal token for %s: %w", s.ShopifyDomain, err)
			}
		}
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		id, err := repo.UpsertStore(ctx, domain.Store{
			Name:          s.Name,
			ShopifyDomain: s.ShopifyDomain,
			Description:   s.Description,
			Logo:          s.Logo,
			Categories:    s.Categories,
			IsActive:      active,
		}, sealed)
		if err != nil {
			return stats, fmt.Errorf("seed store: %w", err)
		}
		storeIDs[s.ShopifyDomain] = id
		stats.stores++
		logger.Info("Seeded store", zap.String("store_id", id), zap.String("shop", s.ShopifyDomain))
	}

	for _, u := range seed.Users {
		userID, err := repo.UpsertUser(ctx, domain.User{
			Email:       u.Email,
			Name:        u.Name,
			DeviceToken: u.DeviceToken,
		})
		if err != nil {
			return stats, fmt.Errorf("seed user: %w", err)
		}
		stats.users++

		for _, d := range u.SubscribeTo {
			_, err := repo.Subscribe(ctx, userID, storeIDs[d])
			if errors.Is(err, domain.ErrAlreadySubscribed) {
				continue
			}
			if err != nil {
				return stats, fmt.Errorf("subscribe %s to %s: %w", u.Email, d, err)
			}
			stats.subscriptions++
		}
	}
	return stats, nil
}
