// Package main prints a password hash in the format stored in users.password_hash.
// It is used when creating or resetting user records by hand without running
// the server. The password is read from the first argument, or from stdin.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/YASSERRMD/nexusERP/internal/auth"
)

func main() {
	password, err := readPassword()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	iterations := auth.MinPasswordIterations
	if v := os.Getenv("ERP_AUTH_PASSWORD_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			iterations = n
		}
	}

	hash, err := auth.NewPasswordHasher(iterations).Hash(password)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func readPassword() (string, error) {
	if len(os.Args) > 1 {
		return os.Args[1], nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("usage: %s <password> (or pipe it on stdin)", os.Args[0])
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}
	return password, nil
}
