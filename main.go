package main

import "ssh-actions/internal/cli"

func main() {
	cli.Execute()
}
