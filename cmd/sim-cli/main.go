package main

import "sdsim/cmd/sim-cli/command"

func main() {
	command.Execute()
}
