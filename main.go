package main

import "github.com/tessro/nstream/internal/cli"

func main() {
	cli.Execute()
}
