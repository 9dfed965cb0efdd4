package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"WalletBridge/sdk/go/walletbridge"
)

// Reads an ERC-20 balance through a running walletbridge server.
func main() {
	server := flag.String("server", "http://127.0.0.1:8080", "walletbridge API address")
	token := flag.String("token", "", "ERC-20 contract address")
	holder := flag.String("holder", "", "account to query")
	flag.Parse()

	client, err := walletbridge.NewClient(*server, nil)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accounts, err := client.Connect(ctx, "")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("connected on %s as %v\n", accounts.Chain, accounts.Accounts)

	if *holder == "" && len(accounts.Accounts) > 0 {
		*holder = accounts.Accounts[0]
	}
	arg, _ := json.Marshal(*holder)
	inv, err := client.Execute(ctx, walletbridge.ExecuteRequest{
		Contract: *token,
		Builtin:  "erc20",
		Method:   "balanceOf",
		Args:     []json.RawMessage{arg},
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("invocation %s: balance=%s\n", inv.ID, inv.Output)
}
