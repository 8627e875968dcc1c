package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove/drivers/mongodriver/mongomigrate"
	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the subvault collections.
var Migrations = migrate.NewGroup("subvault")

// Migrate creates indexes for all subvault collections using the grove
// orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	orch := migrate.NewOrchestrator(mongomigrate.New(s.mdb), Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("subvault/mongo: migration failed: %w", err)
	}
	return nil
}

func init() {
	Migrations.MustRegister(&migrate.Migration{
		Name:    "create_subvault_indexes",
		Version: "20260101000001",
		Up: func(ctx context.Context, exec migrate.Executor) error {
			mexec, ok := exec.(*mongomigrate.Executor)
			if !ok {
				return fmt.Errorf("subvault/mongo: unexpected executor %T", exec)
			}
			for col, models := range migrationIndexes() {
				if _, err := mexec.DB().Collection(col).Indexes().CreateMany(ctx, models); err != nil {
					return fmt.Errorf("subvault/mongo: migrate %s indexes: %w", col, err)
				}
			}
			return nil
		},
		Down: func(ctx context.Context, exec migrate.Executor) error {
			mexec, ok := exec.(*mongomigrate.Executor)
			if !ok {
				return fmt.Errorf("subvault/mongo: unexpected executor %T", exec)
			}
			for col := range migrationIndexes() {
				if err := mexec.DB().Collection(col).Indexes().DropAll(ctx); err != nil {
					return fmt.Errorf("subvault/mongo: drop %s indexes: %w", col, err)
				}
			}
			return nil
		},
	})
}

// migrationIndexes returns the index definitions for all subvault collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colBuckets: {
			{Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "day", Value: 1}}},
		},
		colGroups: {
			{Keys: bson.D{{Key: "buyer_id", Value: 1}}},
			{Keys: bson.D{{Key: "provider_id", Value: 1}}},
		},
		colUsernames: {
			{
				Keys:    bson.D{{Key: "account_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
