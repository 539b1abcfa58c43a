package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/counter"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/donation"
	settingrepo "github.com/ovaphlow/pitchfork/service-member-go/internal/setting/repo"
	subscriberrepo "github.com/ovaphlow/pitchfork/service-member-go/internal/subscriber/repo"
	userrepo "github.com/ovaphlow/pitchfork/service-member-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/database"
)

type tableEnsurer interface {
	EnsureTable(ctx context.Context) error
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and extensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := setup()
			if err != nil {
				return err
			}
			defer lg.Sync()

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := migrate(ctx, db); err != nil {
				return err
			}
			lg.Sugar().Info("schema is up to date")
			return nil
		},
	}
}

func openDB(cfg config.Config) (*sqlx.DB, error) {
	return database.Connect(database.NewConfig(cfg.DatabaseURL, cfg.DatabaseTimeZone, cfg.DatabaseClientEncoding))
}

// migrate creates tables in dependency order; users must exist before the
// tables that reference it.
func migrate(ctx context.Context, db *sqlx.DB) error {
	steps := []struct {
		name string
		t    tableEnsurer
	}{
		{"users", userrepo.NewUserRepo(db)},
		{"password resets", userrepo.NewResetRepo(db)},
		{"counters", counter.NewReceiptAllocator(db)},
		{"donations", donation.NewRepo(db)},
		{"settings", settingrepo.NewRepo(db)},
		{"subscribers", subscriberrepo.NewSubscriberRepo(db)},
	}
	for _, s := range steps {
		if err := s.t.EnsureTable(ctx); err != nil {
			return fmt.Errorf("migrate %s: %w", s.name, err)
		}
	}
	return nil
}
