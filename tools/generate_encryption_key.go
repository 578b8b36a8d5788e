package main

import (
	"fmt"
	"log"

	"github.com/aj9599/raas-platform/crypto"
)

func main() {
	fmt.Println("=== Messaging Secrets Encryption Key Generator ===")
	fmt.Println()

	encodedKey, err := crypto.GenerateEncryptionKey()
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}

	fmt.Println("Your new encryption key has been generated:")
	fmt.Println()
	fmt.Println(encodedKey)
	fmt.Println()
	fmt.Println("Add this to your .env file:")
	fmt.Printf("ENCRYPTION_KEY=%s\n", encodedKey)
	fmt.Println()
	fmt.Println("IMPORTANT:")
	fmt.Println("- Keep this key secure and never commit it to version control")
	fmt.Println("- The same key must be used to decrypt the stored SMTP and WhatsApp secrets")
	fmt.Println("- If you lose this key, the messaging settings have to be entered again")
	fmt.Println()
}
