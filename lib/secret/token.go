// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrClosed is returned by accessors after Close.
var ErrClosed = errors.New("secret: token closed")

// Token is an access token held in locked, non-dumpable memory. A Token
// must not be copied after creation.
type Token struct {
	mu     sync.Mutex
	region []byte
	length int
	closed bool
}

// FromBytes copies source into protected memory and zeros source.
func FromBytes(source []byte) (*Token, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("secret: token is empty")
	}
	region, err := unix.Mmap(-1, 0, len(source), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise: %w", err)
	}
	copy(region, source)
	clear(source)
	return &Token{region: region, length: len(source)}, nil
}

// FromString protects a token that already lives on the heap, such as
// one taken from an environment variable. The original string cannot
// be zeroed.
func FromString(token string) (*Token, error) {
	return FromBytes([]byte(token))
}

// Load reads a token from path, or one line from stdin when path is
// "-". Surrounding whitespace is trimmed.
func Load(path string) (*Token, error) {
	if path == "-" {
		if descriptor := int(os.Stdin.Fd()); term.IsTerminal(descriptor) {
			return prompt(descriptor)
		}
		return read(os.Stdin)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	defer file.Close()
	return read(file)
}

// prompt reads the token from the terminal with echo disabled.
func prompt(descriptor int) (*Token, error) {
	fmt.Fprint(os.Stderr, "Access token: ")
	line, err := term.ReadPassword(descriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("secret: reading token: %w", err)
	}
	defer clear(line)
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret: token is empty")
	}
	return FromBytes(trimmed)
}

func read(source io.Reader) (*Token, error) {
	scanner := bufio.NewScanner(source)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("secret: reading token: %w", err)
		}
		return nil, fmt.Errorf("secret: token is empty")
	}
	line := scanner.Bytes()
	defer clear(line)
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret: token is empty")
	}
	return FromBytes(trimmed)
}

// Bearer returns the Authorization header value for the token.
func (t *Token) Bearer() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", ErrClosed
	}
	return "Bearer " + string(t.region[:t.length]), nil
}

// Equal reports whether the token equals candidate. Used by tests and
// by the fake homeserver.
func (t *Token) Equal(candidate string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || len(candidate) != t.length {
		return false
	}
	var diff byte
	for index := range t.length {
		diff |= t.region[index] ^ candidate[index]
	}
	return diff == 0
}

// Close zeros and releases the protected memory. Idempotent.
func (t *Token) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	clear(t.region)
	var errs []error
	if err := unix.Munlock(t.region); err != nil {
		errs = append(errs, fmt.Errorf("secret: munlock: %w", err))
	}
	if err := unix.Munmap(t.region); err != nil {
		errs = append(errs, fmt.Errorf("secret: munmap: %w", err))
	}
	t.region = nil
	return errors.Join(errs...)
}
