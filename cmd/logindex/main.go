package main

import "github.com/vietddude/logindex/internal/cli"

func main() {
	cli.Execute()
}
