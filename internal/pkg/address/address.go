// Package address canonicalises BLE hardware addresses into lookup keys.
package address

import "strings"

// Key is a separator-free, uppercase hexadecimal form of a hardware address.
type Key string

// Normalize drops every character that is not a hex digit and uppercases the rest.
// An input without hex digits yields the empty key, which never matches a registry entry.
func Normalize(addr string) Key {
	var b strings.Builder
	b.Grow(len(addr))
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'F':
			b.WriteByte(c)
		case c >= 'a' && c <= 'f':
			b.WriteByte(c - 'a' + 'A')
		}
	}
	return Key(b.String())
}

// Empty reports whether the key carries no address.
func (k Key) Empty() bool {
	return k == ""
}

func (k Key) String() string {
	return string(k)
}
