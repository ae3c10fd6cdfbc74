package overlay

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/canonical/bvisor/internal/config"
	"github.com/canonical/bvisor/internal/svcerr"
)

// SymlinkPool allocates short symlink paths under a fixed root
// (spec.md: "Symlink pool"), each a symlink into the overlay, used
// when a guest path must be rewritten in place with a bounded length
// (spec.md §6).
type SymlinkPool struct {
	mu       sync.Mutex
	root     string
	alphabet string
	codeLen  int
	used     map[string]struct{}
	order    []string // all possible codes, pre-shuffled
	cursor   int
}

// NewSymlinkPool builds a pool rooted at root (default
// config.SymlinkPoolRoot). The free-slot scan's starting offset is
// shuffled per instance using entropy drawn from a ulid source
// (github.com/oklog/ulid/v2, a teacher direct dependency) rather than
// a bare math/rand.Seed(time.Now().UnixNano()) call, so that two
// supervisors started in the same process generation don't walk the
// slot space in the same order.
func NewSymlinkPool(root string) (*SymlinkPool, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("symlink pool: create root %s: %w", root, err)
	}

	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	id := ulid.MustNew(ulid.Now(), entropy)
	seed := int64(id.Time())
	for _, b := range id[6:] { // the ulid's 10 entropy bytes
		seed = seed*31 + int64(b)
	}

	alphabet := config.SymlinkCodeAlphabet
	codeLen := config.SymlinkCodeLength

	total := 1
	for i := 0; i < codeLen; i++ {
		total *= len(alphabet)
	}

	order := make([]string, total)
	for i := range order {
		order[i] = encodeCode(i, alphabet, codeLen)
	}

	rand.New(rand.NewSource(seed)).Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	return &SymlinkPool{
		root:     root,
		alphabet: alphabet,
		codeLen:  codeLen,
		used:     map[string]struct{}{},
		order:    order,
	}, nil
}

func encodeCode(n int, alphabet string, length int) string {
	base := len(alphabet)
	buf := make([]byte, length)

	for i := length - 1; i >= 0; i-- {
		buf[i] = alphabet[n%base]
		n /= base
	}

	return string(buf)
}

// Alloc allocates a free slot symlinked to target, returning the
// slot's absolute path.
func (p *SymlinkPool) Alloc(target string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(p.order); i++ {
		code := p.order[(p.cursor+i)%len(p.order)]
		if _, taken := p.used[code]; taken {
			continue
		}

		slot := filepath.Join(p.root, code)

		if err := os.Symlink(target, slot); err != nil {
			continue
		}

		p.used[code] = struct{}{}
		p.cursor = (p.cursor + i + 1) % len(p.order)

		return slot, nil
	}

	return "", svcerr.New(svcerr.KindBufferTooSmall, "symlink pool exhausted")
}

// Free releases the slot at path, unlinking its symlink.
func (p *SymlinkPool) Free(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	code := filepath.Base(path)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("symlink pool: free %s: %w", path, err)
	}

	delete(p.used, code)

	return nil
}

// Teardown unlinks every allocated slot and attempts to remove the
// root, which only succeeds when no other sandbox holds it (spec.md
// §6).
func (p *SymlinkPool) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for code := range p.used {
		_ = os.Remove(filepath.Join(p.root, code))
	}

	p.used = map[string]struct{}{}

	_ = os.Remove(p.root)
}
