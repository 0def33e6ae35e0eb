// ssoctl es la CLI de operación: corre migraciones, siembra clients
// first-party, bloquea IPs y revoca sesiones, directo contra el store.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
	"github.com/vitrinapp/sso-core/internal/http/services/oauth"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
	"github.com/vitrinapp/sso-core/internal/store/pg"
	migrations "github.com/vitrinapp/sso-core/migrations/postgres"
)

func main() {
	_ = godotenv.Load()
	logger.Init(logger.Config{Env: "dev", Level: "warn"})
	defer logger.Sync()

	var dsn string

	root := &cobra.Command{
		Use:           "ssoctl",
		Short:         "CLI de operación del SSO core (directo contra PostgreSQL)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = os.Getenv("DATABASE_URL")
			}
			if dsn == "" {
				return fmt.Errorf("falta DSN (flag --dsn o env DATABASE_URL)")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "DSN de PostgreSQL (env DATABASE_URL)")

	root.AddCommand(migrateCmd(&dsn))
	root.AddCommand(seedClientsCmd(&dsn))
	root.AddCommand(blockIPCmd(&dsn))
	root.AddCommand(sessionsCmd(&dsn))
	root.AddCommand(purgeCmd(&dsn))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, dsn string) (*pg.Store, error) {
	return pg.New(ctx, dsn, pg.PoolConfig{MaxConns: 2})
}

func migrateCmd(dsn *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, *dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			applied, err := store.Migrate(ctx, migrations.FS, migrations.Dir)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("sin migraciones pendientes")
				return nil
			}
			for _, v := range applied {
				fmt.Printf("applied %04d\n", v)
			}
			return nil
		},
	}
}

func seedClientsCmd(dsn *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-clients",
		Short: "Siembra los clients first-party si el registro está vacío",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, *dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			seeded, err := oauth.NewClientRegistry(store.Clients).Seed(ctx)
			if err != nil {
				return err
			}
			if len(seeded) == 0 {
				fmt.Println("registro no vacío, seed omitido")
				return nil
			}
			for _, c := range seeded {
				if c.Secret != "" {
					// el secret solo se muestra acá, se persiste hasheado
					fmt.Printf("%s (%s)  secret=%s\n", c.ClientID, c.Type, c.Secret)
				} else {
					fmt.Printf("%s (%s)\n", c.ClientID, c.Type)
				}
			}
			return nil
		},
	}
}

func blockIPCmd(dsn *string) *cobra.Command {
	var (
		tenantID string
		reason   string
		hours    int
	)
	cmd := &cobra.Command{
		Use:   "block-ip <ip>",
		Short: "Bloquea una IP (global, o del tenant con --tenant)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, *dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			scope := repository.BlockScopeGlobal
			if tenantID != "" {
				scope = repository.BlockScopeTenant
			}
			block := repository.BlockedIP{
				ID:        uuid.NewString(),
				IPAddress: args[0],
				Scope:     scope,
				TenantID:  tenantID,
				Reason:    reason,
				ExpiresAt: time.Now().Add(time.Duration(hours) * time.Hour),
			}
			if err := store.BlockedIPs.Insert(ctx, block); err != nil {
				return err
			}
			fmt.Printf("blocked %s (%s) hasta %s\n", args[0], scope, block.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "limitar el bloqueo a un tenant")
	cmd.Flags().StringVar(&reason, "reason", "manual_block", "motivo del bloqueo")
	cmd.Flags().IntVar(&hours, "hours", 24, "duración del bloqueo en horas")
	return cmd
}

func sessionsCmd(dsn *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Operaciones sobre sesiones",
	}

	revoke := &cobra.Command{
		Use:   "revoke <session-id>",
		Short: "Revoca una sesión y sus refresh tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, *dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Sessions.Revoke(ctx, args[0], "revoked_by_admin"); err != nil {
				return err
			}
			n, err := store.Tokens.RevokeBySession(ctx, args[0], "revoked_by_admin")
			if err != nil {
				return err
			}
			fmt.Printf("session revoked, %d tokens revocados\n", n)
			return nil
		},
	}

	var tenantID string
	revokeUser := &cobra.Command{
		Use:   "revoke-user <user-id>",
		Short: "Revoca todas las sesiones activas de un usuario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" {
				return fmt.Errorf("falta --tenant")
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, *dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			ns, err := store.Sessions.RevokeAllByUser(ctx, tenantID, args[0], "revoked_by_admin")
			if err != nil {
				return err
			}
			nt, err := store.Tokens.RevokeAllByUser(ctx, tenantID, args[0], "revoked_by_admin")
			if err != nil {
				return err
			}
			fmt.Printf("%d sesiones y %d tokens revocados\n", ns, nt)
			return nil
		},
	}
	revokeUser.Flags().StringVar(&tenantID, "tenant", "", "tenant del usuario")

	cmd.AddCommand(revoke, revokeUser)
	return cmd
}

func purgeCmd(dsn *string) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Purga historial de intentos y bloqueos vencidos",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, *dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			cutoff := time.Now().AddDate(0, 0, -days)
			na, err := store.Attempts.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}
			nb, err := store.BlockedIPs.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d intentos purgados, %d bloqueos vencidos eliminados\n", na, nb)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "retención del historial de intentos en días")
	return cmd
}
