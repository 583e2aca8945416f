package tron

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// TRON addresses are 21 bytes: a 0x41 network prefix followed by the
// 20-byte account id. On the wire they appear either hex-encoded (with or
// without the prefix) or base58check-encoded (the familiar T... form).
// Every comparison in the engine goes through NormalizeAddress first;
// comparing mixed encodings directly would silently block all payments.

const addressPrefix = 0x41

const b58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var b58Index [128]int8

func init() {
	for i := range b58Index {
		b58Index[i] = -1
	}
	for i, c := range b58Alphabet {
		b58Index[c] = int8(i)
	}
}

// NormalizeAddress converts a TRON address in either encoding to its
// canonical base58check form.
func NormalizeAddress(address string) (string, error) {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return "", fmt.Errorf("empty address")
	}

	if strings.HasPrefix(addr, "T") && len(addr) == 34 {
		if _, err := base58CheckDecode(addr); err != nil {
			return "", fmt.Errorf("invalid base58 address %q: %w", addr, err)
		}
		return addr, nil
	}

	hexStr := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", fmt.Errorf("address %q is neither base58 nor hex", addr)
	}

	switch len(raw) {
	case 20:
		raw = append([]byte{addressPrefix}, raw...)
	case 21:
		if raw[0] != addressPrefix {
			return "", fmt.Errorf("hex address %q has prefix 0x%02x, want 0x41", addr, raw[0])
		}
	default:
		return "", fmt.Errorf("hex address %q has length %d, want 20 or 21 bytes", addr, len(raw))
	}

	return base58CheckEncode(raw), nil
}

// AddressesEqual reports whether two addresses refer to the same account
// regardless of encoding. Unparseable inputs fall back to a case-insensitive
// string compare so a bad gateway value cannot panic the pipeline.
func AddressesEqual(a, b string) bool {
	na, errA := NormalizeAddress(a)
	nb, errB := NormalizeAddress(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return na == nb
}

func base58CheckEncode(payload []byte) string {
	h1 := sha256.Sum256(payload)
	h2 := sha256.Sum256(h1[:])

	full := make([]byte, 0, len(payload)+4)
	full = append(full, payload...)
	full = append(full, h2[:4]...)

	x := new(big.Int).SetBytes(full)
	base := big.NewInt(58)
	mod := new(big.Int)

	var out []byte
	for x.Sign() > 0 {
		x.DivMod(x, base, mod)
		out = append(out, b58Alphabet[mod.Int64()])
	}
	for _, b := range full {
		if b != 0 {
			break
		}
		out = append(out, b58Alphabet[0])
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func base58CheckDecode(s string) ([]byte, error) {
	x := big.NewInt(0)
	base := big.NewInt(58)
	for _, c := range s {
		if c > 127 || b58Index[c] < 0 {
			return nil, fmt.Errorf("invalid base58 character %q", c)
		}
		x.Mul(x, base)
		x.Add(x, big.NewInt(int64(b58Index[c])))
	}

	raw := x.Bytes()
	leading := 0
	for _, c := range s {
		if byte(c) != b58Alphabet[0] {
			break
		}
		leading++
	}

	full := make([]byte, leading+len(raw))
	copy(full[leading:], raw)

	if len(full) < 5 {
		return nil, fmt.Errorf("decoded address too short")
	}

	payload, checksum := full[:len(full)-4], full[len(full)-4:]
	h1 := sha256.Sum256(payload)
	h2 := sha256.Sum256(h1[:])
	if !bytes.Equal(checksum, h2[:4]) {
		return nil, fmt.Errorf("checksum mismatch")
	}

	return payload, nil
}
