package mercury

import "strings"

// ParsedAddress is the triple an address string parses into.
//
//	[<class>+]<protocol>[://[<host>]]
type ParsedAddress struct {
	Class    string // empty if not set
	ClassSet bool
	Protocol string
	Host     string
	HostSet  bool // true if "://" was present, even with an empty host
}

// ParseAddress parses an address string into its (class?, protocol, host?)
// triple. Strings are not retained; callers own the input slice. Malformed
// prefixes (anything that isn't "[<class>+]<protocol>" optionally followed
// by "://<host>") fail with ProtoNotSupport.
func ParseAddress(s string) (ParsedAddress, error) {
	if s == "" {
		return ParsedAddress{}, NewError(ProtoNotSupport)
	}

	rest := s
	var pa ParsedAddress

	if i := strings.IndexByte(rest, '+'); i >= 0 {
		class := rest[:i]
		tail := rest[i+1:]
		// "+" only introduces a class when what precedes it could be a bare
		// token (no further "+" or "://" inside it); otherwise treat the
		// whole string as protocol[://host] with a literal '+' -- malformed.
		if class == "" || strings.Contains(class, "://") {
			return ParsedAddress{}, NewError(ProtoNotSupport)
		}
		pa.Class = class
		pa.ClassSet = true
		rest = tail
	}

	if i := strings.Index(rest, "://"); i >= 0 {
		pa.Protocol = rest[:i]
		pa.Host = rest[i+3:]
		pa.HostSet = true
	} else {
		pa.Protocol = rest
	}

	if pa.Protocol == "" {
		return ParsedAddress{}, NewError(ProtoNotSupport)
	}

	return pa, nil
}
