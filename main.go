package main

import "loadcast/internal/cli"

func main() {
	cli.Execute()
}
