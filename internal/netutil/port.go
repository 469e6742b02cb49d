package netutil

import (
	"fmt"
	"net"
	"strings"
)

// Listen binds the preferred address, or with autoFallback the first free
// candidate. The returned listener is already bound, so the chosen address
// cannot be taken between selection and serve.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	var tried []string
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
		tried = append(tried, preferred)
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		tried = append(tried, addr)
	}
	return nil, fmt.Errorf("no available controller bind addresses (tried %s)", strings.Join(tried, ", "))
}
