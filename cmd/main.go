package main

import "HexCollector-App/internal/cli"

func main() {
	cli.Execute()
}
