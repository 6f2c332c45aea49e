package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/guild-economy/internal/adapter/storage"
	"github.com/rl1809/guild-economy/internal/config"
	"github.com/rl1809/guild-economy/internal/core/domain"
	"github.com/rl1809/guild-economy/internal/core/service"
)

const (
	guildID       = "stress-guild"
	itemName      = "limited-crate"
	initialSupply = 20
	totalBuyers   = 50
	startBalance  = 1000
)

// Many buyers race for a scarce item. Trades take no cross-request lock, so
// concurrent reads of the same supply may both succeed; this tool shows how
// often that happens against the real stores.
func main() {
	cfg := config.MustLoad()
	ctx := context.Background()

	db, err := sql.Open("mysql", cfg.MySQL.DSN())
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		log.Fatalf("failed to connect mongo: %v", err)
	}
	defer mc.Disconnect(ctx)

	catalog := storage.NewMongoAdapter(mc.Database(cfg.Mongo.Database))
	accounts := storage.NewMySQLAdapter(db)
	if err := accounts.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to create schema: %v", err)
	}

	// Clear previous run
	db.ExecContext(ctx, `DELETE FROM accounts WHERE guild_id = ?`, guildID)
	err = catalog.SaveItem(ctx, domain.Item{
		GuildID:     guildID,
		Name:        itemName,
		Description: "stress test item",
		Cost:        10,
		Max:         1,
		Supply:      domain.Supply(initialSupply),
		AvgPrice:    10,
		Multipliers: domain.PriceRange{Min: 100, Max: 100},
	})
	if err != nil {
		log.Fatalf("failed to seed item: %v", err)
	}
	for i := 0; i < totalBuyers; i++ {
		userID := fmt.Sprintf("user-%d", i)
		if _, err := accounts.CreateAccount(ctx, guildID, userID); err != nil {
			log.Fatalf("failed to create %s: %v", userID, err)
		}
		if _, err := accounts.UpdateUserBalance(ctx, guildID, userID, startBalance); err != nil {
			log.Fatalf("failed to fund %s: %v", userID, err)
		}
	}

	trades := service.NewTradeService(catalog, accounts)

	var applied, soldOut, other atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalBuyers; i++ {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()

			_, err := trades.Buy(ctx, domain.TransactionRequest{
				GuildID:  guildID,
				UserID:   userID,
				ItemName: itemName,
				Count:    1,
			})
			switch {
			case err == nil:
				applied.Add(1)
			case errors.Is(err, domain.ErrInsufficientSupply):
				soldOut.Add(1)
			default:
				log.Printf("%s: %v", userID, err)
				other.Add(1)
			}
		}(fmt.Sprintf("user-%d", i))
	}

	wg.Wait()
	elapsed := time.Since(start)

	item, err := catalog.FindItem(ctx, guildID, itemName)
	if err != nil || item == nil {
		log.Fatalf("failed to reload item: %v", err)
	}
	total := *item.Supply + item.TotalOwned()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Supply:   %d\n", initialSupply)
	fmt.Printf("Total Buyers:     %d\n", totalBuyers)
	fmt.Printf("Applied:          %d\n", applied.Load())
	fmt.Printf("Sold Out:         %d\n", soldOut.Load())
	fmt.Printf("Other Failures:   %d\n", other.Load())
	fmt.Printf("Final Supply:     %d\n", *item.Supply)
	fmt.Printf("Owners:           %d\n", len(item.Owners))
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if total == initialSupply {
		fmt.Println("CONSERVED: supply + owned equals the initial supply")
	} else {
		fmt.Printf("RACE: supply + owned is %d, %d units oversold\n", total, total-initialSupply)
	}
}
