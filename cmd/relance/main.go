// Package main provides relance, a terminal chat front end for the tool-call
// orchestration engine. The model acts on an in-memory notes workspace through
// the create_note, create_folder and list_notes tools.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
