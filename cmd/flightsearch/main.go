package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
