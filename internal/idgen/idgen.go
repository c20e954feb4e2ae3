// Package idgen produces farm identifiers, farm-scoped animal identifiers
// and human-shareable join codes.
package idgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"

	"github.com/herdsphere/herdsphere/internal/domain"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// JoinCodeLength is the default join code length. At 62 symbols the
	// collision probability is negligible; the retry cap below is a safety
	// net, not a functional requirement.
	JoinCodeLength = 8

	// MaxCodeAttempts bounds the uniqueness loop.
	MaxCodeAttempts = 20
)

var (
	farmIDPattern   = regexp.MustCompile(`^farm-(\d{3})$`)
	animalIDPattern = regexp.MustCompile(`^cow-(\d{3})$`)
)

// NextFarmID returns the next farm id after the highest existing one.
// Farm ids are never reused after deletion, so this is max+1, not
// gap-filling.
func NextFarmID(existing []string) string {
	max := 0
	for _, id := range existing {
		m := farmIDPattern.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("farm-%03d", max+1)
}

// NextAnimalID returns the lowest free cow id, reusing numbers freed by
// deleted animals.
func NextAnimalID(existing []string) string {
	taken := map[int]bool{}
	for _, id := range existing {
		m := animalIDPattern.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			taken[n] = true
		}
	}
	n := 1
	for taken[n] {
		n++
	}
	return fmt.Sprintf("cow-%03d", n)
}

// GenerateJoinCode draws a random alphanumeric code. The caller must verify
// uniqueness; see EnsureUniqueJoinCode.
func GenerateJoinCode(length int) (string, error) {
	if length <= 0 {
		length = JoinCodeLength
	}
	out := make([]byte, length)
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out), nil
}

// EnsureUniqueJoinCode generates candidates until exists reports a miss,
// giving up with ErrCodeGenerationExhausted after MaxCodeAttempts.
func EnsureUniqueJoinCode(ctx context.Context, exists func(ctx context.Context, code string) (bool, error)) (string, error) {
	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := GenerateJoinCode(JoinCodeLength)
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.ErrCodeGenerationExhausted
}
