package idgen

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the fixed 62-character set that short identifiers are drawn from.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// attemptFactor bounds UniqueIDs: at most count*attemptFactor draws are made
// before returning whatever distinct identifiers were collected.
const attemptFactor = 100

// RandomID returns a random identifier of the given length, each character
// drawn independently and uniformly from Alphabet. Identifiers returned by
// separate calls may collide.
func RandomID(length int) (string, error) {
	const op = "idgen.RandomID"

	id, err := gonanoid.Generate(Alphabet, length)
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate id: %w", op, err)
	}

	return id, nil
}

// UniqueIDs returns up to count distinct random identifiers of the given
// length, in generation order. When the identifier space is small relative to
// count the draw budget may run out first, so the result can be shorter than
// count; callers must handle a short batch.
func UniqueIDs(count, length int) ([]string, error) {
	const op = "idgen.UniqueIDs"

	seen := make(map[string]struct{}, count)
	ids := make([]string, 0, count)

	for attempts := 0; attempts < count*attemptFactor && len(ids) < count; attempts++ {
		id, err := gonanoid.Generate(Alphabet, length)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate id: %w", op, err)
		}

		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}
