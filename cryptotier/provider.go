package cryptotier

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/pbkdf2"
)

// Provider is one tier's implementation of the three primitive operations.
// Implementations may panic; the negotiator wraps every call.
type Provider interface {
	Tier() Tier
	RandomBytes(n int) ([]byte, error)
	Hash(data []byte) ([]byte, error)
	DeriveKey(secret, salt []byte, iterations int) ([]byte, error)
}

const deriveKeyLen = 32

// --- Tier 1: platform entropy + argon2id ---

type platformProvider struct{}

func (platformProvider) Tier() Tier { return TierPlatform }

func (platformProvider) RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cryptotier: invalid byte count %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cryptotier: platform entropy: %w", err)
	}
	return buf, nil
}

func (platformProvider) Hash(data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	return sum[:], nil
}

func (platformProvider) DeriveKey(secret, salt []byte, iterations int) ([]byte, error) {
	if len(salt) == 0 {
		return nil, errors.New("cryptotier: empty salt")
	}
	t := uint32(iterations)
	if t < 1 {
		t = 1
	}
	return argon2.IDKey(secret, salt, t, 64*1024, 4, deriveKeyLen), nil
}

// --- Tier 2: software chacha20 keystream + pbkdf2 ---

type softwareProvider struct {
	mu      sync.Mutex
	key     [chacha20.KeySize]byte
	counter uint64
	seeded  bool
}

func (*softwareProvider) Tier() Tier { return TierSoftware }

// seed mixes whatever the process can observe into the keystream key.
// Platform entropy is folded in when readable but is not required.
func (p *softwareProvider) seed() {
	if p.seeded {
		return
	}
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(time.Now().UnixNano()))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(os.Getpid()))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(time.Since(processStart)))
	h.Write(buf[:])
	var best [16]byte
	if _, err := rand.Read(best[:]); err == nil {
		h.Write(best[:])
	}
	copy(p.key[:], h.Sum(nil))
	p.seeded = true
}

func (p *softwareProvider) RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cryptotier: invalid byte count %d", n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seed()

	p.counter++
	var nonce [chacha20.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[:8], p.counter)

	c, err := chacha20.NewUnauthenticatedCipher(p.key[:], nonce[:])
	if err != nil {
		return nil, fmt.Errorf("cryptotier: keystream: %w", err)
	}
	buf := make([]byte, n)
	c.XORKeyStream(buf, buf)
	return buf, nil
}

func (*softwareProvider) Hash(data []byte) ([]byte, error) {
	// Double hashing keeps the T2 digest distinct from the T1 digest so a
	// stored value always identifies the algorithm that produced it.
	first := sha256.Sum256(data)
	sum := sha256.Sum256(first[:])
	return sum[:], nil
}

func (*softwareProvider) DeriveKey(secret, salt []byte, iterations int) ([]byte, error) {
	if len(salt) == 0 {
		return nil, errors.New("cryptotier: empty salt")
	}
	if iterations < 1 {
		iterations = 1
	}
	return pbkdf2.Key(secret, salt, iterations*10000, deriveKeyLen, sha256.New), nil
}

// --- Tier 3: deterministic multi-source mix, insecure ---

type fallbackProvider struct {
	counter atomic.Uint64
}

func (*fallbackProvider) Tier() Tier { return TierFallback }

func (p *fallbackProvider) RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cryptotier: invalid byte count %d", n)
	}
	out := make([]byte, 0, n)
	state := p.mix()
	for len(out) < n {
		state = sha256.Sum256(state[:])
		out = append(out, state[:]...)
	}
	return out[:n], nil
}

// mix folds wall clock, monotonic clock, pid and a call counter into a
// starting state. None of these are secret.
func (p *fallbackProvider) mix() [sha256.Size]byte {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(time.Now().UnixNano()))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(time.Since(processStart)))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(os.Getpid()))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], p.counter.Add(1))
	h.Write(buf[:])
	var state [sha256.Size]byte
	copy(state[:], h.Sum(nil))
	return state
}

func (*fallbackProvider) Hash(data []byte) ([]byte, error) {
	state := sha256.Sum256(data)
	// Repeated hashing, same as the derive path, so T3 output never collides
	// with a single-round T1 digest.
	for i := 0; i < 3; i++ {
		state = sha256.Sum256(state[:])
	}
	return state[:], nil
}

func (*fallbackProvider) DeriveKey(secret, salt []byte, iterations int) ([]byte, error) {
	if len(salt) == 0 {
		return nil, errors.New("cryptotier: empty salt")
	}
	if iterations < 1 {
		iterations = 1
	}
	material := make([]byte, 0, len(secret)+len(salt))
	material = append(material, secret...)
	material = append(material, salt...)
	state := sha256.Sum256(material)
	for i := 0; i < iterations*1000; i++ {
		state = sha256.Sum256(state[:])
	}
	return state[:], nil
}

var processStart = time.Now()

// NewPlatformProvider returns the T1 provider.
func NewPlatformProvider() Provider { return platformProvider{} }

// NewSoftwareProvider returns the T2 provider.
func NewSoftwareProvider() Provider { return &softwareProvider{} }

// NewFallbackProvider returns the deterministic T3 provider. Exposed mainly
// so callers can assemble a degraded chain in tests.
func NewFallbackProvider() Provider { return &fallbackProvider{} }
