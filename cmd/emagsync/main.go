package main

import "github.com/modula-erp/emag-sync-go/internal/adapters/cli"

func main() {
	cli.Execute()
}
