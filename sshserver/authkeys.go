package sshserver

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// AuthorizedKeys is a set of public keys allowed to open viewer sessions.
// A nil set admits every key.
type AuthorizedKeys struct {
	keys map[string]string
}

// LoadAuthorizedKeys parses an OpenSSH authorized_keys file. An empty path
// returns a nil set.
func LoadAuthorizedKeys(path string) (*AuthorizedKeys, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}
	return ParseAuthorizedKeys(data)
}

// ParseAuthorizedKeys parses authorized_keys content. Blank lines and
// comments are skipped.
func ParseAuthorizedKeys(data []byte) (*AuthorizedKeys, error) {
	set := &AuthorizedKeys{keys: make(map[string]string)}
	for i, raw := range bytes.Split(data, []byte("\n")) {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		key, comment, _, _, err := ssh.ParseAuthorizedKey(line)
		if err != nil {
			return nil, fmt.Errorf("parse authorized key on line %d: %w", i+1, err)
		}
		set.keys[ssh.FingerprintSHA256(key)] = comment
	}
	return set, nil
}

// Allows reports whether key may log in.
func (a *AuthorizedKeys) Allows(key ssh.PublicKey) bool {
	if a == nil {
		return true
	}
	if key == nil {
		return false
	}
	_, ok := a.keys[ssh.FingerprintSHA256(key)]
	return ok
}

// Len reports how many keys are in the set.
func (a *AuthorizedKeys) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}
