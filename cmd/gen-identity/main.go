// Command gen-identity creates a fresh P-256 identity keypair and
// prints its hex-encoded private scalar and public key, for seeding
// cmd/server and cmd/client during local testing.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/cilliemalan/microratchet-go/primitives"
)

func main() {
	signer := primitives.NewStdSigner()
	if err := signer.Generate(); err != nil {
		fmt.Fprintln(os.Stderr, "generate identity:", err)
		os.Exit(1)
	}

	priv, err := signer.Store()
	if err != nil {
		fmt.Fprintln(os.Stderr, "store identity:", err)
		os.Exit(1)
	}
	pub, err := signer.PublicKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "read public key:", err)
		os.Exit(1)
	}

	fmt.Printf("private: %s\n", hex.EncodeToString(priv))
	fmt.Printf("public:  %s\n", hex.EncodeToString(pub[:]))
}
