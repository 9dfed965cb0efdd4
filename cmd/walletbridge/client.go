package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"WalletBridge/sdk/go/walletbridge"

	"github.com/urfave/cli/v2"
)

var chainFlag = &cli.StringFlag{Name: "chain", Usage: "chain name, defaults to the server's default chain"}

func newClient(cctx *cli.Context) (*walletbridge.Client, error) {
	return walletbridge.NewClient(cctx.String("server"), nil)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

var chainsCmd = &cli.Command{
	Name:  "chains",
	Usage: "list configured chains",
	Action: func(cctx *cli.Context) error {
		client, err := newClient(cctx)
		if err != nil {
			return err
		}
		chains, err := client.Chains(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(chains)
	},
}

var connectCmd = &cli.Command{
	Name:  "connect",
	Usage: "request account access from the server's wallet",
	Flags: []cli.Flag{chainFlag},
	Action: func(cctx *cli.Context) error {
		client, err := newClient(cctx)
		if err != nil {
			return err
		}
		accounts, err := client.Connect(cctx.Context, cctx.String("chain"))
		if err != nil {
			return err
		}
		fmt.Println("connected to wallet successfully")
		return printJSON(accounts)
	},
}

var accountsCmd = &cli.Command{
	Name:  "accounts",
	Usage: "show the accounts from the last connection",
	Flags: []cli.Flag{chainFlag},
	Action: func(cctx *cli.Context) error {
		client, err := newClient(cctx)
		if err != nil {
			return err
		}
		accounts, err := client.Accounts(cctx.Context, cctx.String("chain"))
		if err != nil {
			return err
		}
		return printJSON(accounts)
	},
}

var callCmd = &cli.Command{
	Name:      "call",
	Usage:     "execute a contract method",
	ArgsUsage: "<contract-address> <method> [json-arg...]",
	Flags: []cli.Flag{
		chainFlag,
		&cli.StringFlag{Name: "abi", Usage: "path to the contract ABI JSON file"},
		&cli.StringFlag{Name: "builtin", Usage: "built-in ABI to use instead of --abi (erc20, erc721)"},
		&cli.StringFlag{Name: "name", Usage: "contract label recorded in the journal"},
		&cli.StringFlag{Name: "value", Usage: "wei to send with the transaction, decimal or 0x hex"},
		&cli.Uint64Flag{Name: "gas", Usage: "gas limit, estimated when zero"},
		&cli.BoolFlag{Name: "wait", Usage: "wait for the transaction receipt"},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() < 2 {
			return cli.ShowSubcommandHelp(cctx)
		}
		req := walletbridge.ExecuteRequest{
			Chain:    cctx.String("chain"),
			Contract: cctx.Args().Get(0),
			Method:   cctx.Args().Get(1),
			Name:     cctx.String("name"),
			Builtin:  cctx.String("builtin"),
			Value:    cctx.String("value"),
			GasLimit: cctx.Uint64("gas"),
			Wait:     cctx.Bool("wait"),
		}
		if path := cctx.String("abi"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read ABI: %w", err)
			}
			req.ABI = data
		}
		for _, arg := range cctx.Args().Slice()[2:] {
			req.Args = append(req.Args, parseArg(arg))
		}

		client, err := newClient(cctx)
		if err != nil {
			return err
		}
		inv, err := client.Execute(cctx.Context, req)
		if err != nil {
			var apiErr *walletbridge.APIError
			if errors.As(err, &apiErr) && apiErr.Invocation != nil {
				_ = printJSON(apiErr.Invocation)
			}
			return err
		}
		return printJSON(inv)
	},
}

// parseArg keeps valid JSON as is and quotes everything else, so
// addresses and big numbers can be passed bare.
func parseArg(arg string) json.RawMessage {
	trimmed := strings.TrimSpace(arg)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(arg)
	return quoted
}

var invocationsCmd = &cli.Command{
	Name:  "invocations",
	Usage: "browse the invocation journal",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "list the latest invocations",
			Flags: []cli.Flag{
				chainFlag,
				&cli.IntFlag{Name: "limit", Value: 20},
				&cli.StringFlag{Name: "status", Usage: "pending, succeeded, failed or reverted"},
			},
			Action: func(cctx *cli.Context) error {
				client, err := newClient(cctx)
				if err != nil {
					return err
				}
				list, err := client.ListInvocations(cctx.Context, walletbridge.ListOptions{
					Limit:  cctx.Int("limit"),
					Status: cctx.String("status"),
					Chain:  cctx.String("chain"),
				})
				if err != nil {
					return err
				}
				return printJSON(list)
			},
		},
		{
			Name:  "stats",
			Usage: "count invocations by status",
			Flags: []cli.Flag{
				chainFlag,
				&cli.StringFlag{Name: "status"},
			},
			Action: func(cctx *cli.Context) error {
				client, err := newClient(cctx)
				if err != nil {
					return err
				}
				stats, err := client.InvocationStats(cctx.Context, walletbridge.ListOptions{
					Status: cctx.String("status"),
					Chain:  cctx.String("chain"),
				})
				if err != nil {
					return err
				}
				return printJSON(stats)
			},
		},
		{
			Name:      "get",
			Usage:     "show one invocation",
			ArgsUsage: "<invocation-id>",
			Action: func(cctx *cli.Context) error {
				if cctx.NArg() != 1 {
					return cli.ShowSubcommandHelp(cctx)
				}
				client, err := newClient(cctx)
				if err != nil {
					return err
				}
				inv, err := client.GetInvocation(cctx.Context, cctx.Args().First())
				if err != nil {
					return err
				}
				return printJSON(inv)
			},
		},
	},
}
