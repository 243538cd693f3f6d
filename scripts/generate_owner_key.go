package main

import (
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	// Generate a fresh ECDSA key pair for the host owner identity
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal("Failed to generate key:", err)
	}

	privateKeyHex := fmt.Sprintf("%x", crypto.FromECDSA(privateKey))
	fmt.Printf("Private Key: 0x%s\n", privateKeyHex)

	// This address goes into the owner field of the host config
	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	fmt.Printf("Owner Address: %s\n", address.Hex())
}
