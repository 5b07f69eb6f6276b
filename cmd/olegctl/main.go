// Command olegctl administers an Oleg server over its HTTP API.
package main

import "github.com/oleg-messenger/oleg/cmd/olegctl/cmd"

func main() {
	cmd.Execute()
}
