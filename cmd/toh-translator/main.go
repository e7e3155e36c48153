package main

import "toh-translator/internal/cli"

func main() {
	cli.Execute()
}
