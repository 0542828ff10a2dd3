package main

import "github.com/loomworks/loom/cmd"

func main() {
	cmd.Execute()
}
