package main

import (
	"fmt"
	"strings"
)

// hasExplainFlag scans raw arguments before flag parsing so --explain works
// even when the rest of the command line is incomplete.
func hasExplainFlag(arguments []string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == "--explain" {
			return true
		}
	}
	return false
}

func writeExplain(text string) int {
	fmt.Println(text)
	return exitOK
}
