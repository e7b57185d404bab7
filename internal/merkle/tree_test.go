package merkle

import (
	"anchor/internal/domain"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func swap(id string, amount, net string, fill domain.Fill) domain.MatchedSwap {
	return domain.MatchedSwap{
		IntentID:    id,
		UserAddress: "0xuser-" + id,
		FromToken:   "USDC",
		ToToken:     "USDT",
		FromChain:   "sepolia",
		ToChain:     "amoy",
		Amount:      decimal.RequireFromString(amount),
		Recipient:   "0xrcpt-" + id,
		NetAmount:   decimal.RequireFromString(net),
		Fill:        fill,
	}
}

func sampleSwaps(n int) []domain.MatchedSwap {
	out := make([]domain.MatchedSwap, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("intent-%d", i)
		if i%2 == 0 {
			out = append(out, swap(id, "100", "0", domain.Matched{Counterparty: fmt.Sprintf("intent-%d", i+1), Amount: decimal.NewFromInt(100)}))
		} else {
			out = append(out, swap(id, "50", "50", domain.PoolFilled{Amount: decimal.NewFromInt(50)}))
		}
	}
	return out
}

func TestLeafHash_KnownEncoding(t *testing.T) {
	s := swap("a", "1000", "0", domain.Matched{Counterparty: "b", Amount: decimal.NewFromInt(1000)})

	want := crypto.Keccak256Hash([]byte(`{"amount":"1000","fromChain":"sepolia","fromToken":"USDC","intentId":"a",` +
		`"matchedAmount":"1000","matchedWith":"b","netAmount":"0","recipient":"0xrcpt-a","toChain":"amoy",` +
		`"toToken":"USDT","userAddress":"0xuser-a"}`))

	got, err := LeafHash(&s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLeafHash_HTMLCharactersStayLiteral(t *testing.T) {
	s := swap("a", "5", "5", domain.PoolFilled{Amount: decimal.NewFromInt(5)})
	s.FromToken = "A&B"
	s.ToToken = "<T>"

	want := crypto.Keccak256Hash([]byte(`{"amount":"5","fromChain":"sepolia","fromToken":"A&B","intentId":"a",` +
		`"netAmount":"5","recipient":"0xrcpt-a","toChain":"amoy","toToken":"<T>","userAddress":"0xuser-a"}`))

	got, err := LeafHash(&s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLeafHash_FieldChangesHash(t *testing.T) {
	base := swap("a", "10", "10", domain.PoolFilled{Amount: decimal.NewFromInt(10)})
	h, err := LeafHash(&base)
	require.NoError(t, err)

	mutations := map[string]func(s *domain.MatchedSwap){
		"amount":    func(s *domain.MatchedSwap) { s.Amount = decimal.NewFromInt(11) },
		"netAmount": func(s *domain.MatchedSwap) { s.NetAmount = decimal.NewFromInt(9) },
		"recipient": func(s *domain.MatchedSwap) { s.Recipient = "0xother" },
		"toChain":   func(s *domain.MatchedSwap) { s.ToChain = "base" },
		"fill":      func(s *domain.MatchedSwap) { s.Fill = domain.Matched{Counterparty: "x", Amount: decimal.NewFromInt(10)} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cp := base
			mutate(&cp)
			other, err := LeafHash(&cp)
			require.NoError(t, err)
			assert.NotEqual(t, h, other)
		})
	}
}

func TestBuild_Empty(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrEmptyTree)

	_, err = Commit(nil)
	assert.ErrorIs(t, err, ErrEmptyTree)
}

func TestCommit_SingleLeaf(t *testing.T) {
	swaps := sampleSwaps(1)
	c, err := Commit(swaps)
	require.NoError(t, err)

	leaf, err := LeafHash(&swaps[0])
	require.NoError(t, err)
	assert.Equal(t, leaf, c.Root)

	proofs := c.Proofs[swaps[0].IntentID]
	require.Len(t, proofs, 1)
	assert.Empty(t, proofs[0].Path)
	assert.True(t, Verify(proofs[0], c.Root.Hex()))
}

func TestCommit_AllProofsVerify(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 7, 8, 13} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			swaps := sampleSwaps(n)
			c, err := Commit(swaps)
			require.NoError(t, err)
			require.Len(t, c.Proofs, n)

			for id, ps := range c.Proofs {
				for _, p := range ps {
					assert.True(t, Verify(p, c.Root.Hex()), id)
					assert.Equal(t, len(p.Path), len(p.Indices))
				}
			}
		})
	}
}

func TestCommit_RootIsPermutationInvariant(t *testing.T) {
	swaps := sampleSwaps(9)
	c1, err := Commit(swaps)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		shuffled := append([]domain.MatchedSwap(nil), swaps...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		c2, err := Commit(shuffled)
		require.NoError(t, err)
		assert.Equal(t, c1.Root, c2.Root)
	}
}

func TestCommit_MultipleRecordsPerIntent(t *testing.T) {
	swaps := []domain.MatchedSwap{
		swap("a", "1000", "0", domain.Matched{Counterparty: "b", Amount: decimal.NewFromInt(400)}),
		swap("a", "1000", "600", domain.PoolFilled{Amount: decimal.NewFromInt(600)}),
		swap("b", "400", "0", domain.Matched{Counterparty: "a", Amount: decimal.NewFromInt(400)}),
	}
	c, err := Commit(swaps)
	require.NoError(t, err)

	require.Len(t, c.Proofs["a"], 2)
	require.Len(t, c.Proofs["b"], 1)
	assert.NotEqual(t, c.Proofs["a"][0].Leaf, c.Proofs["a"][1].Leaf)
	for _, p := range append(c.Proofs["a"], c.Proofs["b"]...) {
		assert.True(t, Verify(p, c.Root.Hex()))
	}
}

func TestVerify_TamperedRecordFails(t *testing.T) {
	swaps := sampleSwaps(4)
	c, err := Commit(swaps)
	require.NoError(t, err)

	p := c.Proofs[swaps[1].IntentID][0]

	tampered := swaps[1]
	tampered.NetAmount = decimal.NewFromInt(1)
	leaf, err := LeafHash(&tampered)
	require.NoError(t, err)

	p.Leaf = leaf.Hex()
	assert.False(t, Verify(p, c.Root.Hex()))
}

func TestVerify_Malformed(t *testing.T) {
	swaps := sampleSwaps(3)
	c, err := Commit(swaps)
	require.NoError(t, err)
	good := c.Proofs[swaps[0].IntentID][0]
	root := c.Root.Hex()

	testCases := []struct {
		name  string
		proof domain.MerkleProof
		root  string
	}{
		{name: "empty_leaf", proof: domain.MerkleProof{Path: good.Path}, root: root},
		{name: "non_hex_leaf", proof: domain.MerkleProof{Leaf: "zz", Path: good.Path}, root: root},
		{name: "short_leaf", proof: domain.MerkleProof{Leaf: "0x1234", Path: good.Path}, root: root},
		{name: "bad_path", proof: domain.MerkleProof{Leaf: good.Leaf, Path: []string{"0xnothex"}}, root: root},
		{name: "bad_root", proof: good, root: "root"},
		{name: "wrong_root", proof: good, root: common.Hash{}.Hex()},
		{name: "missing_path", proof: domain.MerkleProof{Leaf: good.Leaf}, root: root},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, Verify(tc.proof, tc.root))
			})
		})
	}
}

func TestTree_ProofAt(t *testing.T) {
	leaves := []common.Hash{crypto.Keccak256Hash([]byte("x")), crypto.Keccak256Hash([]byte("y")), crypto.Keccak256Hash([]byte("z"))}
	tree, err := Build(leaves)
	require.NoError(t, err)
	assert.Equal(t, 3, tree.Len())

	p, err := tree.ProofAt(2)
	require.NoError(t, err)
	assert.True(t, Verify(p, tree.Root().Hex()))

	_, err = tree.ProofAt(3)
	assert.Error(t, err)
}

func TestBuild_OddNodePromoted(t *testing.T) {
	leaves := []common.Hash{crypto.Keccak256Hash([]byte("a")), crypto.Keccak256Hash([]byte("b")), crypto.Keccak256Hash([]byte("c"))}
	tree, err := Build(leaves)
	require.NoError(t, err)

	sorted := tree.layers[0]
	want := hashPair(hashPair(sorted[0], sorted[1]), sorted[2])
	assert.Equal(t, want, tree.Root())

	// the promoted leaf skips the level it had no sibling on
	p, err := tree.ProofAt(2)
	require.NoError(t, err)
	assert.Len(t, p.Path, 1)
}
