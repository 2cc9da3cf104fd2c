package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVersionFormat is returned when a version string is not a
// dot-separated list of non-negative integers.
var ErrInvalidVersionFormat = errors.New("invalid version format")

// Version is a dotted-integer driver version (e.g. 572.83 is {572, 83}).
//
// Versions are ordered component-wise. Versions of differing lengths are not
// padded: if one is a strict prefix of the other, the shorter one is less (so
// 57 < 57.0 < 57.1).
type Version []uint64

// Comparison is the result of comparing a local version with a remote one.
type Comparison int

const (
	Older Comparison = iota - 1 // remote sorts before local
	Same
	Newer // remote sorts strictly after local
)

func (c Comparison) String() string {
	switch c {
	case Older:
		return "older"
	case Same:
		return "same"
	case Newer:
		return "newer"
	}
	return "Comparison(" + strconv.Itoa(int(c)) + ")"
}

func ParseVersion(str string) (Version, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return nil, fmt.Errorf("%w: empty version", ErrInvalidVersionFormat)
	}
	p := strings.Split(str, ".")
	v := make(Version, len(p))
	for i, c := range p {
		n, err := strconv.ParseUint(c, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: component %d (%q) of %q is not a non-negative integer", ErrInvalidVersionFormat, i, c, str)
		}
		v[i] = n
	}
	return v, nil
}

// MustParseVersion is like ParseVersion, but panics on error.
func MustParseVersion(str string) Version {
	v, err := ParseVersion(str)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare compares the remote version against the local one.
func Compare(local, remote Version) Comparison {
	for i := 0; i < len(local) && i < len(remote); i++ {
		switch {
		case remote[i] > local[i]:
			return Newer
		case remote[i] < local[i]:
			return Older
		}
	}
	switch {
	case len(remote) > len(local):
		return Newer
	case len(remote) < len(local):
		return Older
	}
	return Same
}

func (v Version) String() string {
	p := make([]string, len(v))
	for i, c := range v {
		p[i] = strconv.FormatUint(c, 10)
	}
	return strings.Join(p, ".")
}

func (v Version) Less(w Version) bool {
	return Compare(v, w) == Newer
}

func (v Version) Equal(w Version) bool {
	return Compare(v, w) == Same
}
