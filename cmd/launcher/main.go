// Package main is the entry point of the container process launcher.
package main

import "os"

func main() {
	os.Exit(Execute())
}
