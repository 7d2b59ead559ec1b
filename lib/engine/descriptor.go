// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Descriptor is the signing policy a descriptor string encodes.
type Descriptor struct {
	// AddressType is the script wrapper chain, e.g. "wsh" or "sh-wsh".
	AddressType string

	// Threshold is the number of signatures required.
	Threshold int

	// Sorted is true for sortedmulti.
	Sorted bool

	Keys []Key
}

// Key is one participant key within a descriptor.
type Key struct {
	// Fingerprint is the master key fingerprint from the origin info,
	// lowercased. Empty when the key has no origin.
	Fingerprint string

	// DerivationPath is the origin path without the fingerprint,
	// e.g. "48h/0h/0h/2h".
	DerivationPath string

	// Extended is the key expression after the origin.
	Extended string
}

// Fingerprints returns the key fingerprints in descriptor order.
func (d Descriptor) Fingerprints() []string {
	fingerprints := make([]string, 0, len(d.Keys))
	for _, key := range d.Keys {
		fingerprints = append(fingerprints, key.Fingerprint)
	}
	return fingerprints
}

// DescriptorParserFunc adapts a function to DescriptorParser.
type DescriptorParserFunc func(string) (Descriptor, error)

func (f DescriptorParserFunc) ParseDescriptor(descriptor string) (Descriptor, error) {
	return f(descriptor)
}

// ReferenceParser is a DescriptorParser backed by [ParseDescriptor].
var ReferenceParser DescriptorParser = DescriptorParserFunc(ParseDescriptor)

var wrappers = []string{"sh", "wsh"}

// ParseDescriptor parses the descriptor forms collaborative wallets
// use: multi or sortedmulti inside wsh, sh, or sh(wsh(...)), and the
// single-key forms wpkh, pkh, and tr with threshold 1. A trailing
// "#checksum" is ignored, not verified.
func ParseDescriptor(descriptor string) (Descriptor, error) {
	body, _, _ := strings.Cut(strings.TrimSpace(descriptor), "#")
	if body == "" {
		return Descriptor{}, fmt.Errorf("engine: empty descriptor")
	}

	var chain []string
	for {
		name, inner, ok := unwrap(body)
		if !ok {
			return Descriptor{}, fmt.Errorf("engine: malformed descriptor %q", descriptor)
		}
		switch name {
		case "sh", "wsh":
			chain = append(chain, name)
			body = inner
			continue
		case "wpkh", "pkh", "tr":
			chain = append(chain, name)
			key, err := parseKey(inner)
			if err != nil {
				return Descriptor{}, fmt.Errorf("engine: descriptor %q: %w", descriptor, err)
			}
			return Descriptor{AddressType: strings.Join(chain, "-"), Threshold: 1, Keys: []Key{key}}, nil
		case "multi", "sortedmulti":
			if len(chain) == 0 {
				return Descriptor{}, fmt.Errorf("engine: descriptor %q: %s must be wrapped in %v", descriptor, name, wrappers)
			}
			return parseMulti(strings.Join(chain, "-"), name == "sortedmulti", inner, descriptor)
		default:
			return Descriptor{}, fmt.Errorf("engine: descriptor %q: unsupported script %q", descriptor, name)
		}
	}
}

func parseMulti(addressType string, sorted bool, args, original string) (Descriptor, error) {
	parts := strings.Split(args, ",")
	if len(parts) < 2 {
		return Descriptor{}, fmt.Errorf("engine: descriptor %q: multi needs a threshold and keys", original)
	}
	threshold, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Descriptor{}, fmt.Errorf("engine: descriptor %q: threshold: %w", original, err)
	}
	keys := make([]Key, 0, len(parts)-1)
	for _, part := range parts[1:] {
		key, err := parseKey(part)
		if err != nil {
			return Descriptor{}, fmt.Errorf("engine: descriptor %q: %w", original, err)
		}
		keys = append(keys, key)
	}
	if threshold < 1 || threshold > len(keys) {
		return Descriptor{}, fmt.Errorf("engine: descriptor %q: threshold %d out of range 1..%d", original, threshold, len(keys))
	}
	return Descriptor{AddressType: addressType, Threshold: threshold, Sorted: sorted, Keys: keys}, nil
}

// unwrap splits "name(inner)" into its parts.
func unwrap(expression string) (name, inner string, ok bool) {
	open := strings.IndexByte(expression, '(')
	if open <= 0 || !strings.HasSuffix(expression, ")") {
		return "", "", false
	}
	return expression[:open], expression[open+1 : len(expression)-1], true
}

// parseKey parses "[fingerprint/path]key".
func parseKey(raw string) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Key{}, fmt.Errorf("empty key")
	}
	if !strings.HasPrefix(raw, "[") {
		return Key{Extended: raw}, nil
	}
	origin, extended, ok := strings.Cut(raw[1:], "]")
	if !ok || extended == "" {
		return Key{}, fmt.Errorf("malformed key origin in %q", raw)
	}
	fingerprint, path, _ := strings.Cut(origin, "/")
	if len(fingerprint) != 8 {
		return Key{}, fmt.Errorf("fingerprint %q must be 8 hex digits", fingerprint)
	}
	if _, err := strconv.ParseUint(fingerprint, 16, 32); err != nil {
		return Key{}, fmt.Errorf("fingerprint %q is not hex", fingerprint)
	}
	return Key{
		Fingerprint:    strings.ToLower(fingerprint),
		DerivationPath: path,
		Extended:       extended,
	}, nil
}
