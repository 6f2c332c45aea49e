package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/guild-economy/internal/core/domain"
)

const itemsCollection = "items"

type itemDocument struct {
	GuildID     string           `bson:"guild_id"`
	Name        string           `bson:"name"`
	Description string           `bson:"description"`
	Cost        int64            `bson:"cost"`
	Max         int64            `bson:"max"`
	Supply      *int64           `bson:"supply"` // null is infinite
	Owners      map[string]int64 `bson:"owners"`
	AvgPrice    int64            `bson:"avg_price"`
	Multipliers []int64          `bson:"multipliers"`
	UpdatedAt   time.Time        `bson:"updated_at"`
}

func toItem(doc itemDocument) domain.Item {
	item := domain.Item{
		GuildID:     doc.GuildID,
		Name:        doc.Name,
		Description: doc.Description,
		Cost:        doc.Cost,
		Max:         doc.Max,
		Supply:      doc.Supply,
		Owners:      doc.Owners,
		AvgPrice:    doc.AvgPrice,
		UpdatedAt:   doc.UpdatedAt,
	}
	if item.Owners == nil {
		item.Owners = make(map[string]int64)
	}
	if len(doc.Multipliers) == 2 {
		item.Multipliers = domain.PriceRange{Min: doc.Multipliers[0], Max: doc.Multipliers[1]}
	}
	return item
}

func fromItem(item domain.Item) itemDocument {
	owners := item.Owners
	if owners == nil {
		owners = make(map[string]int64)
	}
	return itemDocument{
		GuildID:     item.GuildID,
		Name:        item.Name,
		Description: item.Description,
		Cost:        item.Cost,
		Max:         item.Max,
		Supply:      item.Supply,
		Owners:      owners,
		AvgPrice:    item.AvgPrice,
		Multipliers: []int64{item.Multipliers.Min, item.Multipliers.Max},
		UpdatedAt:   item.UpdatedAt,
	}
}

var ErrInvalidOwnerKey = errors.New("owner key is not a valid field name")

// ownerField is the dotted path of an owner entry. Keys that could split the
// path or start an operator are refused.
func ownerField(owner domain.OwnerKey) (string, error) {
	if !owner.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOwnerKey, owner.String())
	}
	return "owners." + owner.String(), nil
}

func confirmation(res *mongo.UpdateResult) domain.Confirmation {
	return domain.Confirmation{
		Matched:  res.MatchedCount > 0,
		Modified: res.ModifiedCount > 0,
	}
}

// MongoAdapter stores the item catalog, one document per guild item.
type MongoAdapter struct {
	items *mongo.Collection
}

func NewMongoAdapter(db *mongo.Database) *MongoAdapter {
	return &MongoAdapter{items: db.Collection(itemsCollection)}
}

func (m *MongoAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := m.items.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "guild_id", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create items index: %w", err)
	}
	return nil
}

func (m *MongoAdapter) FindItem(ctx context.Context, guildID, name string) (*domain.Item, error) {
	var doc itemDocument
	err := m.items.FindOne(ctx, bson.M{"guild_id": guildID, "name": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find item: %w", err)
	}
	item := toItem(doc)
	return &item, nil
}

func (m *MongoAdapter) FindItems(ctx context.Context, guildID string) ([]domain.Item, error) {
	return m.find(ctx, bson.M{"guild_id": guildID})
}

func (m *MongoAdapter) FindOwnedItems(ctx context.Context, key domain.OwnerKey) ([]domain.Item, error) {
	field, err := ownerField(key)
	if err != nil {
		return nil, err
	}
	return m.find(ctx, bson.M{
		"guild_id": key.GuildID,
		field:      bson.M{"$exists": true},
	})
}

func (m *MongoAdapter) find(ctx context.Context, filter bson.M) ([]domain.Item, error) {
	cur, err := m.items.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find items: %w", err)
	}
	defer cur.Close(ctx)

	var docs []itemDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	items := make([]domain.Item, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toItem(doc))
	}
	return items, nil
}

func (m *MongoAdapter) UpdateItemOwnerCount(ctx context.Context, guildID, name string, owner domain.OwnerKey, newCount int64, newSupply *int64) (domain.Confirmation, error) {
	field, err := ownerField(owner)
	if err != nil {
		return domain.Confirmation{}, err
	}
	set := bson.M{field: newCount}
	if newSupply != nil {
		set["supply"] = *newSupply
	}
	return m.update(ctx, guildID, name, bson.M{"$set": set})
}

func (m *MongoAdapter) RemoveItemOwner(ctx context.Context, guildID, name string, owner domain.OwnerKey, newSupply *int64) (domain.Confirmation, error) {
	field, err := ownerField(owner)
	if err != nil {
		return domain.Confirmation{}, err
	}
	update := bson.M{"$unset": bson.M{field: ""}}
	if newSupply != nil {
		update["$set"] = bson.M{"supply": *newSupply}
	}
	return m.update(ctx, guildID, name, update)
}

func (m *MongoAdapter) UpdateItemCost(ctx context.Context, guildID, name string, cost int64) (domain.Confirmation, error) {
	return m.update(ctx, guildID, name, bson.M{"$set": bson.M{"cost": cost, "updated_at": time.Now().UTC()}})
}

func (m *MongoAdapter) update(ctx context.Context, guildID, name string, update bson.M) (domain.Confirmation, error) {
	res, err := m.items.UpdateOne(ctx, bson.M{"guild_id": guildID, "name": name}, update)
	if err != nil {
		return domain.Confirmation{}, fmt.Errorf("update item: %w", err)
	}
	return confirmation(res), nil
}

func (m *MongoAdapter) SaveItem(ctx context.Context, item domain.Item) error {
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	_, err := m.items.ReplaceOne(ctx,
		bson.M{"guild_id": item.GuildID, "name": item.Name},
		fromItem(item),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save item: %w", err)
	}
	return nil
}

func (m *MongoAdapter) Guilds(ctx context.Context) ([]string, error) {
	values, err := m.items.Distinct(ctx, "guild_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("distinct guilds: %w", err)
	}
	guilds := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			guilds = append(guilds, s)
		}
	}
	return guilds, nil
}
