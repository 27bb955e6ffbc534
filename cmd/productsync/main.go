package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"openprices_sync/config"
	"openprices_sync/internal/catalog"
	"openprices_sync/internal/products/app"
	"openprices_sync/pkg/dbconnect"
	"openprices_sync/pkg/runlock"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: .env not loaded: %v", err)
	}

	var (
		configPath    = flag.String("config", os.Getenv("PRODUCTSYNC_CONFIG"), "path to the YAML config file")
		flavorName    = flag.String("flavor", string(catalog.FlavorOFF), "source flavor: "+flavorList())
		batchSize     = flag.Int("batch-size", 0, "products per upsert transaction (default from config)")
		forceDownload = flag.Bool("force-download", false, "download the dump even if the cached copy is current")
		datasetURL    = flag.String("dataset", "", "dump URL or local file overriding the flavor's public dump")
		productCode   = flag.String("product", "", "fill a single product from the flavor's API instead of syncing the dump")
	)
	flag.Parse()

	flavor, err := catalog.ParseFlavor(*flavorName)
	if err != nil {
		log.Fatalf("Invalid flavor: %v", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *batchSize > 0 {
		cfg.Sync.BatchSize = *batchSize
	}
	if *forceDownload {
		cfg.Sync.ForceDownload = true
	}
	if *datasetURL != "" {
		if cfg.Sync.DatasetURLs == nil {
			cfg.Sync.DatasetURLs = map[string]string{}
		}
		cfg.Sync.DatasetURLs[string(flavor)] = *datasetURL
	}

	conn, err := dbconnect.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to configure database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	server := app.NewSyncServer(conn, cfg, os.Stdout)
	var redisClient *redis.Client
	if cfg.Lock.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr, Password: cfg.Lock.RedisPassword})
		server.SetLocker(runlock.NewRedisLocker(redisClient, "productsync:lock:", cfg.Lock.TTL))
	}
	server.ServeMetrics(ctx)

	code := run(ctx, server, flavor, *productCode)
	stop()
	if redisClient != nil {
		redisClient.Close()
	}
	conn.Close()
	os.Exit(code)
}

func run(ctx context.Context, server *app.SyncServer, flavor catalog.Flavor, productCode string) int {
	if productCode != "" {
		product, err := server.Enrich(ctx, flavor, productCode)
		if err != nil {
			log.Printf("Product %s: %v", productCode, err)
			return 1
		}
		name := "<unnamed>"
		if product.ProductName != nil {
			name = *product.ProductName
		}
		log.Printf("Product %s: %s", product.Code, name)
		return 0
	}

	summary, err := server.Sync(ctx, flavor)
	if err != nil {
		log.Printf("Sync %s failed: %v", flavor, err)
		return 1
	}
	log.Printf("Sync %s finished: %d added, %d updated, %d skipped, %d committed, %d rows written",
		flavor, summary.Added, summary.Updated, summary.Skipped, summary.Committed, summary.Written)
	return 0
}

func flavorList() string {
	names := make([]string, 0, len(catalog.Flavors()))
	for _, f := range catalog.Flavors() {
		names = append(names, f.String())
	}
	return strings.Join(names, ", ")
}
