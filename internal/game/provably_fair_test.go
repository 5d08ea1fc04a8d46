package game

import (
	"strings"
	"testing"
)

const (
	zeroSeed    = "0000000000000000000000000000000000000000000000000000000000000000"
	instantSeed = "c7a6e51b81d78bc3f01996cf76cd64aea3cb5b7fcdea65d28f3d16c3f7622081"
	bigSeed     = "big-67586"
)

func TestRoundHash_KnownVector(t *testing.T) {
	want := "86410bd99a295ec8f8beabd49da01ac99fabb995431b71b49c54ad37a59fe2ca"
	if got := RoundHash(zeroSeed); got != want {
		t.Errorf("RoundHash() = %v, want %v", got, want)
	}
}

func TestCrashPoint(t *testing.T) {
	tests := []struct {
		name       string
		serverSeed string
		want       int64
	}{
		{
			name:       "All zero seed",
			serverSeed: zeroSeed,
			want:       209,
		},
		{
			name:       "Last digit changed",
			serverSeed: "0000000000000000000000000000000000000000000000000000000000000001",
			want:       153,
		},
		{
			name:       "Instant crash",
			serverSeed: instantSeed,
			want:       0,
		},
		{
			name:       "Revealed seed",
			serverSeed: "20c8a18be0fb4d4529b661938350bfbea3ed822c4dc83e764a079efa14ec9af9",
			want:       1433,
		},
		{
			name:       "Another revealed seed",
			serverSeed: "f0081ce965e0d8614e2c042310db60d725d98dfd8b1934aec6d35de369bd4347",
			want:       826,
		},
		{
			name:       "Above a million",
			serverSeed: bigSeed,
			want:       12100975,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CrashPoint(tt.serverSeed); got != tt.want {
				t.Errorf("CrashPoint() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCrashPoint_Deterministic(t *testing.T) {
	result1 := CrashPoint(zeroSeed)
	result2 := CrashPoint(zeroSeed)
	result3 := CrashPoint(zeroSeed)

	if result1 != result2 || result2 != result3 {
		t.Errorf("CrashPoint() is not deterministic: got %v, %v, %v", result1, result2, result3)
	}
}

func TestCrashPoint_SingleDigitChange(t *testing.T) {
	base := CrashPoint(zeroSeed)
	for _, d := range "123456789abcdef" {
		seed := zeroSeed[:10] + string(d) + zeroSeed[11:]
		if CrashPoint(seed) == base {
			t.Errorf("CrashPoint(%s) = %v, same as the all zero seed", seed, base)
		}
	}
}

func TestDivisible(t *testing.T) {
	tests := []struct {
		hash string
		mod  int
		want bool
	}{
		{"0", 101, true},
		{"65", 101, true}, // 0x65 = 101
		{"66", 101, false},
		{"ca", 101, true}, // 0xca = 202
		{strings.Repeat("f", 64), 101, false},
		{RoundHash(instantSeed), 101, true},
		{RoundHash(zeroSeed), 101, false},
		{"xyz", 101, false},
	}

	for _, tt := range tests {
		if got := Divisible(tt.hash, tt.mod); got != tt.want {
			t.Errorf("Divisible(%q, %d) = %v, want %v", tt.hash, tt.mod, got, tt.want)
		}
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name       string
		serverSeed string
		claimed    int64
		want       Verdict
	}{
		{
			name:       "Valid verification",
			serverSeed: zeroSeed,
			claimed:    209,
			want:       VerdictOK,
		},
		{
			name:       "Off by one below a million",
			serverSeed: zeroSeed,
			claimed:    210,
			want:       VerdictScam,
		},
		{
			name:       "Instant crash claimed as 1.00x",
			serverSeed: instantSeed,
			claimed:    100,
			want:       VerdictScam,
		},
		{
			name:       "Instant crash",
			serverSeed: instantSeed,
			claimed:    0,
			want:       VerdictOK,
		},
		{
			name:       "Float error above a million",
			serverSeed: bigSeed,
			claimed:    12100975 + 5,
			want:       VerdictOK,
		},
		{
			name:       "Too far above a million",
			serverSeed: bigSeed,
			claimed:    12100975 + 8,
			want:       VerdictScam,
		},
		{
			name:       "No seed revealed",
			serverSeed: "",
			claimed:    209,
			want:       VerdictUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.serverSeed, tt.claimed); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithinTolerance(t *testing.T) {
	tests := []struct {
		expected int64
		claimed  int64
		want     bool
	}{
		{209, 209, true},
		{209, 208, false},
		{1000000, 1000001, false},
		{1000001, 1000008, true},
		{1000001, 1000009, false},
		{1000001, 999994, true},
		{12100975, 12100982, true},
		{12100975, 12100983, false},
	}

	for _, tt := range tests {
		if got := withinTolerance(tt.expected, tt.claimed); got != tt.want {
			t.Errorf("withinTolerance(%d, %d) = %v, want %v", tt.expected, tt.claimed, got, tt.want)
		}
	}
}

func TestHashCommitment(t *testing.T) {
	want := "60e05bd1b195af2f94112fa7197a5c88289058840ce7c6df9693756bc6250f55"

	hash1 := HashCommitment(zeroSeed)
	hash2 := HashCommitment(zeroSeed)

	if hash1 != hash2 {
		t.Error("HashCommitment() is not deterministic")
	}
	if hash1 != want {
		t.Errorf("HashCommitment() = %v, want %v", hash1, want)
	}
}

func TestChainLinked(t *testing.T) {
	commitment := HashCommitment(zeroSeed)

	if !ChainLinked(zeroSeed, commitment) {
		t.Error("ChainLinked() = false for the seed's own commitment")
	}
	if ChainLinked(instantSeed, commitment) {
		t.Error("ChainLinked() = true for a foreign seed")
	}
	if ChainLinked("", "") {
		t.Error("ChainLinked() = true for empty input")
	}
}

func BenchmarkCrashPoint(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CrashPoint(zeroSeed)
	}
}

func BenchmarkHashCommitment(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		HashCommitment(zeroSeed)
	}
}
