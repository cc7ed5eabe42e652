// Package main is the entry point for the fracture CLI.
package main

import "fracture.dev/pkg/fracture/cmd"

func main() {
	cmd.Execute()
}
