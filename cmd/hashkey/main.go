// Command hashkey prints the argon2id hash of an API key for API_KEY_HASHES.
// The key is read from stdin so it never appears in shell history.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/patientcheck/patientcheck/internal/auth"
)

type output struct {
	Hash         string `json:"hash"`
	CredentialID string `json:"credential_id"`
}

func main() {
	format := flag.String("format", "plain", "Output format: plain or json")
	flag.Parse()

	if err := run(os.Stdin, os.Stdout, *format); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer, format string) error {
	key, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read api key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is required on stdin")
	}

	hash, err := auth.HashToken(key)
	if err != nil {
		return fmt.Errorf("hash api key: %w", err)
	}

	result := output{Hash: hash, CredentialID: auth.HashedCredentialID(hash)}

	switch strings.ToLower(format) {
	case "plain":
		_, err = fmt.Fprintln(out, result.Hash)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(result)
	default:
		return errors.New("invalid format; use plain or json")
	}
	return err
}
