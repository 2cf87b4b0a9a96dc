// natctl -- CLI client for the natd daemon's admin HTTP API.
package main

import "github.com/nat64io/natd/cmd/natctl/commands"

func main() {
	commands.Execute()
}
