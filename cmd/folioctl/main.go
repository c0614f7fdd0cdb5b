// Command folioctl administers a folio deployment: schema migrations, demo
// seeds, development tokens and ledger verification.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
