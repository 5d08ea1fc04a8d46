package game

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
)

const (
	// CLIENT_SEED is the public seed every round's HMAC is keyed against.
	CLIENT_SEED = "000000000000000007a9a31ff7f07463d91af6b5454241d5faf282e5e0fe1b3a"

	// INSTANT_CRASH_MODULUS gives a 1 in 101 chance of a round busting at 0x.
	INSTANT_CRASH_MODULUS = 101

	// Above this expected crash point (hundredths) float error is tolerated.
	TOLERANCE_THRESHOLD = 1000000
	TOLERANCE_DELTA     = 8
)

type Verdict string

const (
	VerdictOK      Verdict = "ok"
	VerdictScam    Verdict = "scam"
	VerdictUnknown Verdict = "unknown"
)

// RoundHash returns HMAC-SHA256(key=serverSeed, CLIENT_SEED) as hex.
func RoundHash(serverSeed string) string {
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(CLIENT_SEED))
	return hex.EncodeToString(h.Sum(nil))
}

// Divisible folds the hex digits of hash into a remainder modulo mod, nibble
// by nibble, and reports whether it is zero.
func Divisible(hash string, mod int) bool {
	val := 0
	for i := 0; i < len(hash); i++ {
		n, err := strconv.ParseUint(hash[i:i+1], 16, 8)
		if err != nil {
			return false
		}
		val = ((val << 4) + int(n)) % mod
	}
	return val == 0
}

// CrashPoint recomputes the crash point, in hundredths, that a round with the
// given revealed server seed must have had. Zero means an instant crash.
func CrashPoint(serverSeed string) int64 {
	hash := RoundHash(serverSeed)

	if Divisible(hash, INSTANT_CRASH_MODULUS) {
		return 0
	}

	// Most significant 52 bits of the hash.
	h, err := strconv.ParseUint(hash[:52/4], 16, 64)
	if err != nil {
		return 0
	}
	const e = float64(1 << 52)
	hf := float64(h)

	num := float64(100*e) - hf
	den := float64(e - hf)
	return int64(math.Floor(num / den))
}

// Verify compares the claimed crash point against the one derived from the
// revealed seed. An empty seed cannot be judged.
func Verify(serverSeed string, claimed int64) Verdict {
	if serverSeed == "" {
		return VerdictUnknown
	}
	if withinTolerance(CrashPoint(serverSeed), claimed) {
		return VerdictOK
	}
	return VerdictScam
}

func withinTolerance(expected, claimed int64) bool {
	diff := expected - claimed
	if diff < 0 {
		diff = -diff
	}
	if diff == 0 {
		return true
	}
	return expected > TOLERANCE_THRESHOLD && diff < TOLERANCE_DELTA
}

// HashCommitment creates a SHA256 hash of the seed. Seeds form a chain: the
// commitment of a round's seed is the seed revealed by the round before it.
func HashCommitment(seed string) string {
	h := sha256.New()
	h.Write([]byte(seed))
	return hex.EncodeToString(h.Sum(nil))
}

// ChainLinked reports whether seed hashes to commitment.
func ChainLinked(seed, commitment string) bool {
	if seed == "" || commitment == "" {
		return false
	}
	return HashCommitment(seed) == commitment
}
