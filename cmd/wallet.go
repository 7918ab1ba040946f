package cmd

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
)

var walletKeyFlag string

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage signing accounts (deployer, player, ...)",
}

var walletImportCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Import a private key into the OS keychain",
	Long: `Store a private key under a name. The key goes to the OS keychain (or an
encrypted file keyring where none is available); only the name and address
are written to accounts.json.

The key is read from --key or, when omitted, from the first line of stdin.

Examples:
  w3raffle wallet import deployer --key 0xac09...
  echo $PLAYER_KEY | w3raffle wallet import player`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := walletKeyFlag
		if key == "" {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no key given: pass --key or pipe it on stdin")
			}
			key = strings.TrimSpace(line)
		}
		mgr, err := walletManager()
		if err != nil {
			return err
		}
		a, err := mgr.Import(args[0], key)
		if err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Account %q imported: %s", a.Name, ui.Addr(a.Address))))
		return nil
	},
}

var walletGenerateCmd = &cobra.Command{
	Use:   "generate <name>",
	Short: "Generate a new key and store it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		hexKey := hex.EncodeToString(crypto.FromECDSA(key))
		mgr, err := walletManager()
		if err != nil {
			return err
		}
		a, err := mgr.Import(args[0], hexKey)
		if err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Account %q created: %s", a.Name, ui.Addr(a.Address))))
		fmt.Println(ui.Hint("Fund it before deploying or entering on a live network"))
		return nil
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := walletManager()
		if err != nil {
			return err
		}
		accounts, err := mgr.List()
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println(ui.Info("No accounts yet."))
			fmt.Println(ui.Hint("Import one with: w3raffle wallet import deployer --key <private-key>"))
			return nil
		}

		var balanceOf func(string) string
		if n, err := currentNetwork(); err == nil {
			if client, err := dial(cmd.Context(), n); err == nil {
				balanceOf = func(addr string) string {
					bal, err := client.Balance(cmd.Context(), common.HexToAddress(addr))
					if err != nil {
						return "-"
					}
					return chain.WeiToETH(bal)
				}
			}
		}

		t := ui.NewTable([]ui.Column{
			{Title: "Name", Width: 14},
			{Title: "Address", Width: 44},
			{Title: "Balance (ETH)", Width: 14},
			{Title: "Default", Width: 8},
		})
		for _, a := range accounts {
			def := ""
			if a.Name == cfg.DefaultAccount {
				def = ui.StyleSuccess.Render("✓")
			}
			bal := "-"
			if balanceOf != nil {
				bal = balanceOf(a.Address)
			}
			t.AddRow(ui.Val(a.Name), ui.Addr(a.Address), bal, def)
		}
		fmt.Print(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d account(s)", len(accounts))))
		return nil
	},
}

var walletRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an account and its key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !ui.ConfirmDanger(fmt.Sprintf("Remove account %q and delete its key?", name)) {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}
		mgr, err := walletManager()
		if err != nil {
			return err
		}
		if err := mgr.Remove(name); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Account %q removed.", name)))
		return nil
	},
}

var walletUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the default signing account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := walletManager()
		if err != nil {
			return err
		}
		if _, err := mgr.Get(args[0]); err != nil {
			return err
		}
		cfg.DefaultAccount = args[0]
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Default account set to %q.", args[0])))
		return nil
	},
}

func init() {
	walletImportCmd.Flags().StringVar(&walletKeyFlag, "key", "", "hex private key")
	walletCmd.AddCommand(walletImportCmd, walletGenerateCmd, walletListCmd, walletRemoveCmd, walletUseCmd)
}
