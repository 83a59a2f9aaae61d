package ident

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Room codes use the same short uppercase alphabet the join links carry.
const (
	RoomCodeAlphabet = "ABCDEFGHIJKLMNOP123456789"
	RoomCodeLength   = 6

	EntryIDAlphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	EntryIDLength   = 21
)

// Generator produces random identifiers with a fixed size and alphabet.
type Generator struct {
	size     int
	alphabet string
}

// NewGenerator creates a new Generator.
// size must be between 1 and 256. alphabet must have at least 2 characters.
func NewGenerator(size int, alphabet string) (*Generator, error) {
	if size < 1 || size > 256 {
		return nil, fmt.Errorf("id size must be between 1 and 256, got %d", size)
	}
	if len(alphabet) < 2 {
		return nil, fmt.Errorf("id alphabet must have at least 2 characters, got %d", len(alphabet))
	}
	return &Generator{
		size:     size,
		alphabet: alphabet,
	}, nil
}

func (g *Generator) Generate() (string, error) {
	id, err := gonanoid.Generate(g.alphabet, g.size)
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id, nil
}

func (g *Generator) Validate(id string) (bool, string) {
	if len(id) != g.size {
		return false, fmt.Sprintf("expected length %d, got %d", g.size, len(id))
	}
	for _, c := range id {
		if !strings.ContainsRune(g.alphabet, c) {
			return false, fmt.Sprintf("character '%c' not in alphabet", c)
		}
	}
	return true, ""
}

// RoomCodes returns a generator for join-link room codes.
func RoomCodes() *Generator {
	g, err := NewGenerator(RoomCodeLength, RoomCodeAlphabet)
	if err != nil {
		panic(err) // constants are valid
	}
	return g
}

// EntryIDs returns a generator for chat entry identifiers.
func EntryIDs() *Generator {
	g, err := NewGenerator(EntryIDLength, EntryIDAlphabet)
	if err != nil {
		panic(err)
	}
	return g
}
