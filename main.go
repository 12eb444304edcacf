package main

import "github.com/agentic-research/quire/cmd"

func main() {
	cmd.Execute()
}
