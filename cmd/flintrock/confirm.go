package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// confirmf prompts the operator with a yes/no question and reports
// whether they answered yes.
func confirmf(format string, args ...interface{}) bool {
	fmt.Fprintf(os.Stderr, format+" [y/N]: ", args...)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
