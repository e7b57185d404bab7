package merkle

import (
	"anchor/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Commitment is the root of one batch plus the proofs of every record, keyed by intent id
type Commitment struct {
	Root   common.Hash
	Proofs map[string][]domain.MerkleProof
}

// Commit hashes every swap record, builds the tree and collects the proofs.
// Records of the same intent keep their output order in Proofs.
func Commit(swaps []domain.MatchedSwap) (*Commitment, error) {
	leaves := make([]common.Hash, len(swaps))
	for i := range swaps {
		h, err := LeafHash(&swaps[i])
		if err != nil {
			return nil, err
		}
		leaves[i] = h
	}

	tree, err := Build(leaves)
	if err != nil {
		return nil, err
	}

	used := make(map[common.Hash]int, len(leaves))
	proofs := make(map[string][]domain.MerkleProof, len(swaps))
	for i, leaf := range leaves {
		positions := tree.index[leaf]
		pos := positions[used[leaf]%len(positions)]
		used[leaf]++

		p, err := tree.ProofAt(pos)
		if err != nil {
			return nil, err
		}
		id := swaps[i].IntentID
		proofs[id] = append(proofs[id], p)
	}

	return &Commitment{Root: tree.Root(), Proofs: proofs}, nil
}
