package main

import "github.com/pipedeck/pipedeck/cmd/pipedeck-ctl/cmd"

func main() {
	cmd.Execute()
}
