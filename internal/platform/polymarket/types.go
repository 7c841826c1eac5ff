package polymarket

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// flexBool accepts a JSON bool or a "true"/"false" string; the CLOB is
// not consistent between endpoints.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// priceLevel is one side entry of /book. Prices and sizes are strings.
type priceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type bookResponse struct {
	Market  string       `json:"market"`
	AssetID string       `json:"asset_id"`
	Bids    []priceLevel `json:"bids"`
	Asks    []priceLevel `json:"asks"`
}

// bestAsk returns the lowest ask. The CLOB does not guarantee the
// ordering of levels.
func (b bookResponse) bestAsk() (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for _, lvl := range b.Asks {
		if !found || lvl.Price.LessThan(best) {
			best = lvl.Price
			found = true
		}
	}
	return best, found
}

type marketToken struct {
	TokenID string          `json:"token_id"`
	Outcome string          `json:"outcome"`
	Price   decimal.Decimal `json:"price"`
	Winner  flexBool        `json:"winner"`
}

type marketResponse struct {
	ConditionID string        `json:"condition_id"`
	Question    string        `json:"question"`
	Closed      flexBool      `json:"closed"`
	Resolved    flexBool      `json:"resolved"`
	Tokens      []marketToken `json:"tokens"`
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// orderRequest is the POST /order body.
type orderRequest struct {
	Order     signedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType string      `json:"orderType"`
}

type signedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type orderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}
