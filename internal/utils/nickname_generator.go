package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var adjectives = []string{
	"Amber", "Crimson", "Quiet", "Rapid", "Lucky",
	"Frozen", "Solar", "Lunar", "Cobalt", "Scarlet",
	"Hidden", "Vivid", "Noble", "Keen", "Stellar",
}

var nouns = []string{
	"Otter", "Heron", "Badger", "Condor", "Marten",
	"Osprey", "Puffin", "Gecko", "Mantis", "Walrus",
	"Ibis", "Tapir", "Finch", "Moose", "Crane",
}

// GenerateNickname creates a random default nickname in the format
// "AdjectiveNoun-XXXX" for users who sign up without one
func GenerateNickname() (string, error) {
	adjIdx, err := rand.Int(rand.Reader, big.NewInt(int64(len(adjectives))))
	if err != nil {
		return "", fmt.Errorf("failed to pick adjective: %w", err)
	}

	nounIdx, err := rand.Int(rand.Reader, big.NewInt(int64(len(nouns))))
	if err != nil {
		return "", fmt.Errorf("failed to pick noun: %w", err)
	}

	suffix, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("failed to pick suffix: %w", err)
	}

	return fmt.Sprintf("%s%s-%04d", adjectives[adjIdx.Int64()], nouns[nounIdx.Int64()], suffix.Int64()), nil
}
