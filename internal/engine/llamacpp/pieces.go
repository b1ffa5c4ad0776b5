package llamacpp

import (
	"encoding/binary"
	"hash/fnv"
	"sync"

	"omnid/internal/engine"
)

// pieceBase offsets ids handed out for generated pieces so they never
// collide with vocabulary ids returned by the tokenizer.
const pieceBase engine.Token = 1 << 30

// pieceTable interns generated text pieces. The library streams pieces,
// not ids, and has no detokenizer, so generated tokens are identified by
// their interned piece.
type pieceTable struct {
	mu     sync.Mutex
	ids    map[string]engine.Token
	pieces []string
}

func newPieceTable() *pieceTable {
	return &pieceTable{ids: map[string]engine.Token{}}
}

func (t *pieceTable) intern(piece string) engine.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[piece]; ok {
		return id
	}
	id := pieceBase + engine.Token(len(t.pieces))
	t.pieces = append(t.pieces, piece)
	t.ids[piece] = id
	return id
}

// piece returns the text of a generated token, or false for vocabulary ids.
func (t *pieceTable) piece(id engine.Token) (string, bool) {
	if id < pieceBase {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	i := int(id - pieceBase)
	if i >= len(t.pieces) {
		return "", false
	}
	return t.pieces[i], true
}

// promptMemo remembers the text behind recent encodings so a token
// sequence can be turned back into the prompt the library evaluates.
type promptMemo struct {
	mu    sync.Mutex
	size  int
	order []uint64
	texts map[uint64]string
}

func newPromptMemo(size int) *promptMemo {
	return &promptMemo{size: size, texts: map[uint64]string{}}
}

func tokenKey(tokens []engine.Token) uint64 {
	h := fnv.New64a()
	var b [4]byte
	for _, t := range tokens {
		binary.LittleEndian.PutUint32(b[:], uint32(t))
		_, _ = h.Write(b[:])
	}
	return h.Sum64()
}

func (m *promptMemo) put(tokens []engine.Token, text string) {
	k := tokenKey(tokens)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.texts[k]; !ok {
		m.order = append(m.order, k)
		if len(m.order) > m.size {
			delete(m.texts, m.order[0])
			m.order = m.order[1:]
		}
	}
	m.texts[k] = text
}

func (m *promptMemo) get(tokens []engine.Token) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.texts[tokenKey(tokens)]
	return s, ok
}

// cache records the history evaluated for one prompt state file.
type cache struct {
	owner  any
	path   string
	tokens []engine.Token
	drop   func(path string)
}

func (c *cache) Len() int { return len(c.tokens) }

func (c *cache) Trim(n int) error {
	if n < len(c.tokens) {
		c.tokens = c.tokens[:n]
	}
	return nil
}

func (c *cache) Valid() bool { return true }

func (c *cache) Close() error {
	c.tokens = nil
	if c.drop != nil && c.path != "" {
		c.drop(c.path)
	}
	return nil
}
