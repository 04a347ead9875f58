package config

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vigil/pkg/domain/interfaces"
	"github.com/m-mizutani/vigil/pkg/infra/badger"
	"github.com/m-mizutani/vigil/pkg/infra/firestore"
	"github.com/m-mizutani/vigil/pkg/infra/memory"
	"github.com/urfave/cli/v3"
)

// Store holds storage backend configuration
type Store struct {
	Backend           string
	BadgerPath        string
	FirestoreProject  string
	FirestoreDatabase string
}

// Flags returns CLI flags for storage configuration
func (c *Store) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Storage backend (memory, badger, firestore)",
			Value:       "memory",
			Destination: &c.Backend,
			Sources:     cli.EnvVars("VIGIL_STORE"),
		},
		&cli.StringFlag{
			Name:        "badger-path",
			Usage:       "Badger database directory (empty for in-memory)",
			Destination: &c.BadgerPath,
			Sources:     cli.EnvVars("VIGIL_BADGER_PATH"),
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Firestore project ID",
			Destination: &c.FirestoreProject,
			Sources:     cli.EnvVars("VIGIL_FIRESTORE_PROJECT"),
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID (empty for default)",
			Destination: &c.FirestoreDatabase,
			Sources:     cli.EnvVars("VIGIL_FIRESTORE_DATABASE"),
		},
	}
}

// Open creates the configured storage backend. The caller owns Close.
func (c *Store) Open(ctx context.Context) (interfaces.Database, error) {
	switch c.Backend {
	case "memory":
		return memory.New(), nil
	case "badger":
		return badger.New(c.BadgerPath)
	case "firestore":
		if c.FirestoreProject == "" {
			return nil, goerr.New("firestore-project is required for firestore backend")
		}
		return firestore.New(ctx, c.FirestoreProject, c.FirestoreDatabase)
	default:
		return nil, goerr.New("unknown storage backend", goerr.V("backend", c.Backend))
	}
}
