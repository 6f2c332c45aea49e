package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/guild-economy/internal/core/domain"
)

func getMongoDB(t *testing.T) *mongo.Database {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(2*time.Second))
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	db := client.Database("economy_test")
	if err := db.Collection(itemsCollection).Drop(ctx); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if err := NewMongoAdapter(db).EnsureIndexes(ctx); err != nil {
		t.Fatalf("index setup failed: %v", err)
	}
	return db
}

func seedSword(t *testing.T, adapter *MongoAdapter, supply *int64) {
	t.Helper()
	err := adapter.SaveItem(context.Background(), domain.Item{
		GuildID:     "g1",
		Name:        "sword",
		Description: "sharp",
		Cost:        100,
		Max:         3,
		Supply:      supply,
		AvgPrice:    100,
		Multipliers: domain.PriceRange{Min: 80, Max: 120},
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestMongoFindItem_RoundTrip(t *testing.T) {
	adapter := NewMongoAdapter(getMongoDB(t))
	ctx := context.Background()
	seedSword(t, adapter, domain.Supply(5))

	item, err := adapter.FindItem(ctx, "g1", "sword")
	if err != nil {
		t.Fatalf("FindItem failed: %v", err)
	}
	if item == nil {
		t.Fatal("expected item, got nil")
	}
	if item.Supply == nil || *item.Supply != 5 || item.Max != 3 || item.Multipliers.Max != 120 {
		t.Errorf("unexpected item: %+v", item)
	}

	missing, err := adapter.FindItem(ctx, "g1", "shield")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for a missing item, got %+v, %v", missing, err)
	}
}

func TestMongoInfiniteSupply(t *testing.T) {
	adapter := NewMongoAdapter(getMongoDB(t))
	ctx := context.Background()
	seedSword(t, adapter, nil)

	owner := domain.NewOwnerKey("g1", "u1")
	conf, err := adapter.UpdateItemOwnerCount(ctx, "g1", "sword", owner, 2, nil)
	if err != nil || !conf.Confirmed(true) {
		t.Fatalf("owner update not confirmed: %+v, %v", conf, err)
	}

	item, _ := adapter.FindItem(ctx, "g1", "sword")
	if !item.InfiniteSupply() {
		t.Error("supply must stay infinite")
	}
	if item.Owned(owner) != 2 {
		t.Errorf("expected 2 owned, got %d", item.Owned(owner))
	}
}

func TestMongoOwnerUpdates(t *testing.T) {
	adapter := NewMongoAdapter(getMongoDB(t))
	ctx := context.Background()
	seedSword(t, adapter, domain.Supply(5))
	owner := domain.NewOwnerKey("g1", "u1")

	conf, err := adapter.UpdateItemOwnerCount(ctx, "g1", "sword", owner, 2, domain.Supply(3))
	if err != nil || !conf.Matched || !conf.Modified {
		t.Fatalf("expected matched and modified, got %+v, %v", conf, err)
	}

	owned, err := adapter.FindOwnedItems(ctx, owner)
	if err != nil || len(owned) != 1 {
		t.Fatalf("expected one owned item, got %d, %v", len(owned), err)
	}

	conf, err = adapter.RemoveItemOwner(ctx, "g1", "sword", owner, domain.Supply(5))
	if err != nil || !conf.Confirmed(true) {
		t.Fatalf("remove not confirmed: %+v, %v", conf, err)
	}

	item, _ := adapter.FindItem(ctx, "g1", "sword")
	if _, ok := item.Owners[owner.String()]; ok {
		t.Error("owner entry should be gone")
	}
	if *item.Supply != 5 {
		t.Errorf("expected supply 5, got %d", *item.Supply)
	}

	conf, err = adapter.UpdateItemOwnerCount(ctx, "g1", "missing", owner, 1, nil)
	if err != nil || conf.Matched {
		t.Errorf("expected no match for a missing item, got %+v, %v", conf, err)
	}
}

func TestMongoCostAndGuilds(t *testing.T) {
	adapter := NewMongoAdapter(getMongoDB(t))
	ctx := context.Background()
	seedSword(t, adapter, nil)

	if err := adapter.SaveItem(ctx, domain.Item{GuildID: "g2", Name: "bow", Cost: 5, Max: 1}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	conf, err := adapter.UpdateItemCost(ctx, "g1", "sword", 90)
	if err != nil || !conf.Confirmed(true) {
		t.Fatalf("cost update not confirmed: %+v, %v", conf, err)
	}
	item, _ := adapter.FindItem(ctx, "g1", "sword")
	if item.Cost != 90 || item.AvgPrice != 100 {
		t.Errorf("only cost should change, got %+v", item)
	}

	guilds, err := adapter.Guilds(ctx)
	if err != nil {
		t.Fatalf("Guilds failed: %v", err)
	}
	if len(guilds) != 2 {
		t.Errorf("expected 2 guilds, got %v", guilds)
	}
}

func TestMongoOwnerWrites_RejectFieldPathKeys(t *testing.T) {
	adapter := NewMongoAdapter(getMongoDB(t))
	ctx := context.Background()
	seedSword(t, adapter, domain.Supply(5))

	for _, user := range []string{"a.b", "$set", ""} {
		owner := domain.NewOwnerKey("g1", user)

		if _, err := adapter.UpdateItemOwnerCount(ctx, "g1", "sword", owner, 1, domain.Supply(4)); !errors.Is(err, ErrInvalidOwnerKey) {
			t.Errorf("update for %q: expected ErrInvalidOwnerKey, got: %v", user, err)
		}
		if _, err := adapter.RemoveItemOwner(ctx, "g1", "sword", owner, domain.Supply(5)); !errors.Is(err, ErrInvalidOwnerKey) {
			t.Errorf("remove for %q: expected ErrInvalidOwnerKey, got: %v", user, err)
		}
		if _, err := adapter.FindOwnedItems(ctx, owner); !errors.Is(err, ErrInvalidOwnerKey) {
			t.Errorf("find owned for %q: expected ErrInvalidOwnerKey, got: %v", user, err)
		}
	}

	item, err := adapter.FindItem(ctx, "g1", "sword")
	if err != nil || item == nil {
		t.Fatalf("document should still decode, got %+v, %v", item, err)
	}
	if len(item.Owners) != 0 || *item.Supply != 5 {
		t.Errorf("document should be untouched: %+v", item)
	}
}
