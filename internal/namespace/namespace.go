// Package namespace derives storage namespaces from user emails.
//
// A namespace is recomputed from the email on every access and never stored,
// so every read and write path must go through the same Codec.
package namespace

import (
	"fmt"
	"strings"

	tlerrors "github.com/arkilian/timeline/internal/errors"
)

// Codec maps a user email to its storage namespace.
type Codec func(email string) (string, error)

// Separator replaces characters that are illegal in a path segment.
const Separator = "_"

var replacer = strings.NewReplacer("@", Separator, ".", Separator)

// FromEmail is the canonical Codec: trim, lower-case, then replace '@' and '.'
// with '_'. The result must consist of [a-z0-9_+-] only.
func FromEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", tlerrors.NewNamespaceError(tlerrors.CodeEmptyEmail, "email must not be empty")
	}
	ns := replacer.Replace(strings.ToLower(email))
	if err := Validate(ns); err != nil {
		return "", err
	}
	return ns, nil
}

// Validate checks that ns is usable as a path segment.
func Validate(ns string) error {
	if ns == "" {
		return tlerrors.NewNamespaceError(tlerrors.CodeEmptyEmail, "namespace must not be empty")
	}
	for i := 0; i < len(ns); i++ {
		if !allowed(ns[i]) {
			return tlerrors.NewNamespaceError(tlerrors.CodeIllegalNamespace,
				fmt.Sprintf("namespace %q contains disallowed character %q", ns, ns[i]))
		}
	}
	return nil
}

func allowed(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '+' || c == '-':
		return true
	}
	return false
}
