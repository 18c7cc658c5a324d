package fsops

import (
	"math/rand/v2"

	"github.com/runningwild/fsbench/pkg/errs"
)

const fillChunk = 4 << 20

// FillRandom fills buf with pseudo-random bytes. Incompressible content keeps
// compressing or deduplicating filesystems honest.
func FillRandom(buf []byte) {
	var seed [32]byte
	for i := 0; i < len(seed); i += 8 {
		v := rand.Uint64()
		for j := 0; j < 8; j++ {
			seed[i+j] = byte(v >> (8 * j))
		}
	}
	r := rand.NewChaCha8(seed)
	r.Read(buf)
}

// RandomBytes returns a new buffer of n random bytes.
func RandomBytes(n int) []byte {
	buf := make([]byte, n)
	FillRandom(buf)
	return buf
}

// MakeRandomFile creates path (and its parents) holding size random bytes.
func MakeRandomFile(path string, size int64) error {
	f, err := MakeFile(path)
	if err != nil {
		return err
	}
	chunk := fillChunk
	if size < int64(chunk) {
		chunk = int(size)
	}
	buf := make([]byte, chunk)
	for left := size; left > 0; {
		n := int64(len(buf))
		if left < n {
			n = left
		}
		FillRandom(buf[:n])
		if err := Write(f, buf[:n]); err != nil {
			f.Close()
			return err
		}
		left -= n
	}
	return errs.IOf(f.Close(), "close %s", path)
}
