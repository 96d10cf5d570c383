// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-signet.
//
// go-signet is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/jeremyhahn/go-signet/pkg/types"
	"golang.org/x/term"
)

// readPassphrase obtains the key passphrase for an operation. When
// --passphrase-env names a variable its value is used; otherwise the
// user is prompted on the terminal with echo disabled. Generate-style
// operations pass confirm=true to prompt twice.
func readPassphrase(confirm bool) (*types.Password, error) {
	if env := globalConfig.PassphraseEnv; env != "" {
		value, ok := os.LookupEnv(env)
		if !ok {
			return nil, fmt.Errorf("passphrase environment variable %s is not set", env)
		}
		return types.PasswordFromString(value), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal; use --passphrase-env to supply the passphrase")
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		second, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			wipe(first)
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		match := bytes.Equal(first, second)
		wipe(second)
		if !match {
			wipe(first)
			return nil, fmt.Errorf("passphrases do not match")
		}
	}

	return types.NewPassword(first), nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
