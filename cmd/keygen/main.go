package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	role := flag.String("role", "authority", "role the key is for: authority|custodian|warchest")
	flag.Parse()

	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	env := "TREASURY_" + map[string]string{
		"authority": "AUTHORITY",
		"custodian": "CUSTODIAN",
		"warchest":  "WARCHEST",
	}[*role]
	if env == "TREASURY_" {
		log.Fatalf("unknown -role %q (supported: authority|custodian|warchest)", *role)
	}

	fmt.Println("=== key generated ===")
	fmt.Println()
	fmt.Printf("export %s=\"%s\"\n", env, addr.Hex())
	fmt.Printf("# private key, keep offline: %s\n", hexutil.Encode(crypto.FromECDSA(key)))
	fmt.Println()
	fmt.Println("Only the address goes into the treasury config; the daemon never needs the key.")
}
