package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/config"
	"github.com/fjod/go_storefront/internal/repository"
)

type productWriter interface {
	UpsertProduct(ctx context.Context, doc catalog.ProductDocument) error
}

// seed loads a JSON array of products into the configured catalog backend.
func main() {
	file := flag.String("file", "catalog.json", "path to a JSON array of products")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	products, err := readProducts(*file)
	if err != nil {
		log.Fatalf("Failed to read products: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	writer, closeFn, err := openWriter(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer closeFn()

	for _, p := range products {
		if err := writer.UpsertProduct(ctx, p); err != nil {
			log.Fatalf("Failed to upsert %s: %v", p.ID, err)
		}
	}
	log.Printf("seeded %d products into %s catalog", len(products), cfg.CatalogBackend)
}

func readProducts(path string) ([]catalog.ProductDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var products []catalog.ProductDocument
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, p := range products {
		if p.ID == "" || p.PriceCents < 0 {
			return nil, fmt.Errorf("invalid product %+v", p)
		}
	}
	return products, nil
}

func openWriter(ctx context.Context, cfg *config.Config) (productWriter, func(), error) {
	if cfg.CatalogBackend == "mongo" {
		db, err := catalog.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		return catalog.NewMongoReader(db), func() { _ = db.Client().Disconnect(context.Background()) }, nil
	}

	port, err := strconv.Atoi(cfg.DBPort)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              port,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.RunMigrations(creds); err != nil {
		repo.Close()
		return nil, nil, err
	}
	return catalog.NewPostgresReader(repo.DB()), func() { repo.Close() }, nil
}
