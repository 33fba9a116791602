package ssh

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// authMethods returns the methods to offer, in the order the server should
// try them. A private key replaces password authentication entirely.
func authMethods(details ConnectionDetails, identity Identity) ([]ssh.AuthMethod, error) {
	if !identity.IsZero() {
		signer, err := loadSigner(identity)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	if details.Password == "" {
		return nil, errors.New("no authentication method provided")
	}
	return []ssh.AuthMethod{
		ssh.Password(details.Password),
		ssh.KeyboardInteractive(passwordChallenge(details.Password)),
	}, nil
}

// passwordChallenge answers every keyboard-interactive prompt with the
// password.
func passwordChallenge(password string) ssh.KeyboardInteractiveChallenge {
	return func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}
}

// loadSigner parses the identity key, reading it from disk unless it was
// given inline.
func loadSigner(identity Identity) (ssh.Signer, error) {
	var key []byte
	switch {
	case identity.Data != "":
		key = []byte(identity.Data)
	case looksLikePEM(identity.Path):
		key = []byte(identity.Path)
	default:
		b, err := os.ReadFile(identity.Path)
		if err != nil {
			return nil, fmt.Errorf("unable to read private key: %w", err)
		}
		key = b
	}

	if identity.Passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(key, []byte(identity.Passphrase))
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.New("private key is encrypted and no passphrase was provided")
		}
		return nil, fmt.Errorf("unable to parse private key: %w", err)
	}
	return signer, nil
}

func looksLikePEM(s string) bool {
	return strings.Contains(s, "-----BEGIN ")
}
