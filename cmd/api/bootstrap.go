package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-member-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

func bootstrapAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the superadmin account from ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := setup()
			if err != nil {
				return err
			}
			defer lg.Sync()
			sugar := lg.Sugar()

			if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
				return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required")
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ids, err := utilities.NewSnowflakeGenerator(cfg.SnowflakeNode)
			if err != nil {
				return err
			}
			svc := user.NewService(user.Deps{
				Store:  userrepo.NewUserRepo(db),
				Resets: userrepo.NewResetRepo(db),
				Tokens: auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL),
				IDs:    ids,
				Logger: sugar,
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			u, created, err := svc.EnsureSuperAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword)
			if err != nil {
				return fmt.Errorf("bootstrap admin: %w", err)
			}
			if created {
				sugar.Infow("superadmin created", "userId", u.ID, "username", u.Username)
			} else {
				sugar.Infow("superadmin already present", "userId", u.ID, "username", u.Username)
			}
			return nil
		},
	}
	return cmd
}
