package main

import (
	"crypto/rand"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/keybound/identity-vault-backend/accessctl"
	"github.com/keybound/identity-vault-backend/api/accounts"
	"github.com/keybound/identity-vault-backend/auth"
	"github.com/keybound/identity-vault-backend/cmd/flags"
	"github.com/keybound/identity-vault-backend/httpserver"
	"github.com/keybound/identity-vault-backend/storage"
)

func main() {
	app := &cli.App{
		Name:  "vaultserver",
		Usage: "Serve the passphrase-gated account API",
		Flags: append([]cli.Flag{
			flags.StoreFlag,
			flags.ListenAddrFlag,
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			storeURI := cCtx.String(flags.StoreFlag.Name)
			store, err := storage.NewStoreFactory(logger).StoreFor(storeURI)
			if err != nil {
				logger.Error("Failed to create identity store", "err", err, "uri", storeURI)
				return err
			}
			defer store.Close()
			logger.Info("Identity store ready", "backend", store.Name())

			gate := auth.NewGate(store, logger)
			controller := accessctl.NewController(store, gate, rand.Reader, logger)
			handler := accounts.NewHandler(controller, logger)

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
