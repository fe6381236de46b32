package main

import "birrwatch/internal/cli"

func main() {
	cli.Execute()
}
