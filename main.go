package main

import "github.com/crewgate/crewgate/cmd"

func main() {
	cmd.Execute()
}
