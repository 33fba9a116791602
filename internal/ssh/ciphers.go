package ssh

import (
	"fmt"
	"strings"
)

// DefaultAllowedCiphers is the cipher allow-list used when none is given.
const DefaultAllowedCiphers = "aes128-ctr,aes128-cbc,3des-ctr,3des-cbc,blowfish-cbc,aes192-ctr,aes192-cbc,aes256-ctr,aes256-cbc"

// implementedCiphers are the cipher names golang.org/x/crypto/ssh can
// negotiate.
var implementedCiphers = map[string]bool{
	"aes128-ctr":                    true,
	"aes192-ctr":                    true,
	"aes256-ctr":                    true,
	"aes128-gcm@openssh.com":        true,
	"aes256-gcm@openssh.com":        true,
	"chacha20-poly1305@openssh.com": true,
	"arcfour256":                    true,
	"arcfour128":                    true,
	"arcfour":                       true,
	"aes128-cbc":                    true,
	"3des-cbc":                      true,
}

// parseCiphers splits an allow-list and keeps the implemented names in
// order. dropped lists the rest.
func parseCiphers(list string) (ciphers, dropped []string, err error) {
	if strings.TrimSpace(list) == "" {
		list = DefaultAllowedCiphers
	}
	for _, c := range strings.Split(list, ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if implementedCiphers[c] {
			ciphers = append(ciphers, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	if len(ciphers) == 0 {
		return nil, dropped, fmt.Errorf("none of the allowed ciphers %q is supported", list)
	}
	return ciphers, dropped, nil
}
