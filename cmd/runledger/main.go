package main

import "github.com/rpggio/runledger/internal/cli"

func main() {
	cli.Execute()
}
