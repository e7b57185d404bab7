package prices

import (
	"anchor/internal/domain"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Hash commits to the prices used by a batch: keccak256 of the token->price JSON object.
// encoding/json writes map keys sorted, so equal tables hash equally.
func Hash(table *domain.PriceTable) (common.Hash, error) {
	prices := map[string]string{}
	if table != nil {
		for token, p := range table.Prices {
			prices[token] = p.String()
		}
	}

	b, err := json.Marshal(prices)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode price data: %w", err)
	}
	return crypto.Keccak256Hash(b), nil
}
