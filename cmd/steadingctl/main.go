package main

import (
	"fmt"
	"os"

	"steading.world/internal/persistence/indexdb"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "verify":
			verifyCmd(os.Args[2:])
			return
		case "days", "weeks", "productions", "spends", "farms":
			dbCmd(os.Args[1], os.Args[2:])
			return
		case "schema":
			fmt.Print(indexdb.SchemaSQL())
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: steadingctl verify|days|weeks|productions|spends|farms|schema [flags]")
	os.Exit(2)
}
