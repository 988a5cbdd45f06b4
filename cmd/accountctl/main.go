package main

import (
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/keybound/identity-vault-backend/api/accounts"
	"github.com/keybound/identity-vault-backend/auth"
	"github.com/keybound/identity-vault-backend/cmd/flags"
	"github.com/keybound/identity-vault-backend/interfaces"
	"github.com/keybound/identity-vault-backend/keyset"
	"github.com/keybound/identity-vault-backend/storage"
)

var accountFlag = &cli.StringFlag{
	Name:     "account",
	Required: true,
	Usage:    "account identifier",
}

var passphraseFlag = &cli.StringFlag{
	Name:     "passphrase",
	Required: true,
	Usage:    "account passphrase",
}

var newPassphraseFlag = &cli.StringFlag{
	Name:     "new-passphrase",
	Required: true,
	Usage:    "replacement passphrase",
}

func main() {
	app := &cli.App{
		Name:  "accountctl",
		Usage: "Operate on account-service accounts",
		Commands: []*cli.Command{
			{
				Name:        "create",
				Usage:       "provision a new account directly in a store",
				Description: "Generates a fresh key set sealed under the given passphrase and writes the account straight into the identity store. Creation is an operator action; the service itself does not expose it.",
				Flags: append([]cli.Flag{
					flags.StoreFlag,
					accountFlag,
					passphraseFlag,
				}, flags.CommonFlags...),
				Action: createAccount,
			},
			{
				Name:  "show",
				Usage: "inspect an account through the service API",
				Flags: []cli.Flag{
					flags.ServerURLFlag,
					accountFlag,
					passphraseFlag,
				},
				Action: showAccount,
			},
			{
				Name:  "passwd",
				Usage: "change an account passphrase through the service API",
				Flags: []cli.Flag{
					flags.ServerURLFlag,
					accountFlag,
					passphraseFlag,
					newPassphraseFlag,
				},
				Action: changePassphrase,
			},
			{
				Name:  "delete",
				Usage: "destroy an account and its documents through the service API",
				Flags: []cli.Flag{
					flags.ServerURLFlag,
					accountFlag,
					passphraseFlag,
				},
				Action: deleteAccount,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func createAccount(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	accountID := cCtx.String(accountFlag.Name)
	passphrase := cCtx.String(passphraseFlag.Name)
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}

	store, err := storage.NewStoreFactory(logger).StoreFor(cCtx.String(flags.StoreFlag.Name))
	if err != nil {
		return fmt.Errorf("could not open identity store: %w", err)
	}
	defer store.Close()

	ks, err := keyset.Generate(accountID, []byte(passphrase), rand.Reader)
	if err != nil {
		return fmt.Errorf("could not generate key set: %w", err)
	}

	now := time.Now().UTC()
	err = store.Create(cCtx.Context, &interfaces.Identity{
		ID:         accountID,
		KeySet:     ks,
		CreatedAt:  now,
		ModifiedAt: now,
	})
	if err != nil {
		return fmt.Errorf("could not create account: %w", err)
	}

	fmt.Printf("created account %q in %s\n", accountID, store.Name())
	return nil
}

func showAccount(cCtx *cli.Context) error {
	client := accounts.NewClient(cCtx.String(flags.ServerURLFlag.Name))
	info, err := client.Inspect(cCtx.String(accountFlag.Name), credentials(cCtx))
	if err != nil {
		return err
	}

	fmt.Printf("account:     %s\n", info.ID)
	fmt.Printf("created:     %s\n", info.CreatedAt.Format(time.RFC3339))
	fmt.Printf("modified:    %s\n", info.ModifiedAt.Format(time.RFC3339))
	fmt.Printf("fingerprint: %s\n", info.KeyFingerprint)
	fmt.Printf("documents:   %d\n", info.DocumentCount)
	return nil
}

func changePassphrase(cCtx *cli.Context) error {
	client := accounts.NewClient(cCtx.String(flags.ServerURLFlag.Name))
	newPassphrase := cCtx.String(newPassphraseFlag.Name)
	if err := client.ChangePassphrase(cCtx.String(accountFlag.Name), credentials(cCtx), newPassphrase); err != nil {
		return err
	}

	fmt.Println("passphrase changed")
	return nil
}

func deleteAccount(cCtx *cli.Context) error {
	client := accounts.NewClient(cCtx.String(flags.ServerURLFlag.Name))
	if err := client.Destroy(cCtx.String(accountFlag.Name), credentials(cCtx)); err != nil {
		return err
	}

	fmt.Println("account destroyed")
	return nil
}

func credentials(cCtx *cli.Context) auth.Credentials {
	return auth.Credentials{
		Identifier: cCtx.String(accountFlag.Name),
		Passphrase: cCtx.String(passphraseFlag.Name),
	}
}
