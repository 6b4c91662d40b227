package main

import "github.com/gematik/zero-op/cmd/zero-op/cmd"

func main() {
	cmd.Execute()
}
