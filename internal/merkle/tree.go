// Package merkle commits a batch of matched swaps to a keccak-256 Merkle root.
// Pairs are hashed in sorted order so proofs verify with OpenZeppelin's MerkleProof.
package merkle

import (
	"anchor/internal/domain"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrEmptyTree = errors.New("merkle tree has no leaves")

// LeafHash is keccak256 over the swap's JSON with alphabetically ordered keys.
// matchedAmount and matchedWith are present only for peer-to-peer records.
func LeafHash(s *domain.MatchedSwap) (common.Hash, error) {
	fields := map[string]string{
		"amount":      s.Amount.String(),
		"fromChain":   s.FromChain,
		"fromToken":   s.FromToken,
		"intentId":    s.IntentID,
		"netAmount":   s.NetAmount.String(),
		"recipient":   s.Recipient,
		"toChain":     s.ToChain,
		"toToken":     s.ToToken,
		"userAddress": s.UserAddress,
	}
	if m, ok := s.Fill.(domain.Matched); ok {
		fields["matchedAmount"] = m.Amount.String()
		fields["matchedWith"] = m.Counterparty
	}

	// map keys are encoded sorted; <, > and & stay literal as in JSON.stringify
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode leaf of %s: %w", s.IntentID, err)
	}
	return crypto.Keccak256Hash(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

type Tree struct {
	layers [][]common.Hash
	index  map[common.Hash][]int // leaf -> positions in layers[0]
}

// Build sorts the leaves first, so any permutation of the same set yields the same root.
// An odd node at the end of a level is carried up unchanged.
func Build(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}

	base := make([]common.Hash, len(leaves))
	copy(base, leaves)
	sort.Slice(base, func(i, j int) bool { return bytes.Compare(base[i][:], base[j][:]) < 0 })

	t := &Tree{
		layers: [][]common.Hash{base},
		index:  make(map[common.Hash][]int, len(base)),
	}
	for i, l := range base {
		t.index[l] = append(t.index[l], i)
	}

	level := base
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		t.layers = append(t.layers, next)
		level = next
	}
	return t, nil
}

func (t *Tree) Root() common.Hash {
	return t.layers[len(t.layers)-1][0]
}

func (t *Tree) Len() int {
	return len(t.layers[0])
}

// ProofAt returns the sibling path of the leaf at position pos of the sorted leaf layer
func (t *Tree) ProofAt(pos int) (domain.MerkleProof, error) {
	if pos < 0 || pos >= t.Len() {
		return domain.MerkleProof{}, fmt.Errorf("leaf position %d out of range", pos)
	}

	proof := domain.MerkleProof{
		Leaf:    t.layers[0][pos].Hex(),
		Path:    []string{},
		Indices: []int{},
	}

	idx := pos
	for _, level := range t.layers[:len(t.layers)-1] {
		sib := idx ^ 1
		if sib < len(level) {
			proof.Path = append(proof.Path, level[sib].Hex())
			proof.Indices = append(proof.Indices, idx&1)
		}
		idx /= 2
	}
	return proof, nil
}

// Verify recomputes the root from proof. Malformed input yields false.
func Verify(proof domain.MerkleProof, root string) bool {
	want, ok := decodeHash(root)
	if !ok {
		return false
	}
	cur, ok := decodeHash(proof.Leaf)
	if !ok {
		return false
	}

	for _, p := range proof.Path {
		sib, ok := decodeHash(p)
		if !ok {
			return false
		}
		cur = hashPair(cur, sib)
	}
	return cur == want
}

func decodeHash(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}
