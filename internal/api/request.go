package api

import "time"

// CreateQuoteRequestBody opens a quote request. Timeout is Unix milliseconds,
// the same value the taker signed.
type CreateQuoteRequestBody struct {
	AssetPair      string `json:"assetPair" example:"SOL/USDC"`
	Direction      string `json:"direction" example:"buy"`
	Amount         string `json:"amount" example:"1.5"`
	Timeout        int64  `json:"timeout" example:"1767261600000"`
	Chain          string `json:"chain,omitempty" example:"solana"`
	TakerPublicKey string `json:"takerPublicKey"`
	Signature      string `json:"signature"`
}

// CancelBody cancels the request in the path.
type CancelBody struct {
	TakerPublicKey string `json:"takerPublicKey"`
	Signature      string `json:"signature"`
}

// SubmitQuoteBody answers the request in the path.
type SubmitQuoteBody struct {
	Price          string `json:"price" example:"150.25"`
	ExpirationTime int64  `json:"expirationTime"`
	MakerPublicKey string `json:"makerPublicKey"`
	Signature      string `json:"signature"`
}

// AcceptQuoteBody accepts one quote on the request in the path.
type AcceptQuoteBody struct {
	QuoteID        string `json:"quoteId"`
	TakerPublicKey string `json:"takerPublicKey"`
	Signature      string `json:"signature"`
}

// SendMessageBody carries a message already encrypted by the sender.
type SendMessageBody struct {
	SenderPublicKey         string `json:"senderPublicKey"`
	RecipientStealthAddress string `json:"recipientStealthAddress"`
	EncryptedContent        string `json:"encryptedContent"`
	EphemeralPublicKey      string `json:"ephemeralPublicKey"`
	IV                      string `json:"iv"`
	AuthTag                 string `json:"authTag"`
	Signature               string `json:"signature"`
}

// WhitelistBody is an admin-signed whitelist mutation. The admin credential
// travels in the X-Admin-Credential header.
type WhitelistBody struct {
	Address        string `json:"address"`
	AdminPublicKey string `json:"adminPublicKey"`
	Signature      string `json:"signature"`
}

// CreateQuoteRequestResponse returns the commitment opening and stealth key
// to the taker; they are not retrievable later.
type CreateQuoteRequestResponse struct {
	QuoteRequestID    string    `json:"quoteRequestId"`
	Status            string    `json:"status"`
	StealthAddress    string    `json:"stealthAddress"`
	StealthPrivateKey string    `json:"stealthPrivateKey"`
	AmountCommitment  string    `json:"amountCommitment"`
	AmountBlinding    string    `json:"amountBlinding"`
	Chain             string    `json:"chain"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// SubmitQuoteResponse returns the price opening and the maker's stealth key.
type SubmitQuoteResponse struct {
	QuoteID           string    `json:"quoteId"`
	QuoteRequestID    string    `json:"quoteRequestId"`
	Status            string    `json:"status"`
	PriceCommitment   string    `json:"priceCommitment"`
	PriceBlinding     string    `json:"priceBlinding"`
	StealthAddress    string    `json:"stealthAddress"`
	StealthPrivateKey string    `json:"stealthPrivateKey"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// AcceptQuoteResponse describes the fill.
type AcceptQuoteResponse struct {
	QuoteRequestID      string `json:"quoteRequestId"`
	QuoteID             string `json:"quoteId"`
	Status              string `json:"status"`
	Nullifier           string `json:"nullifier"`
	NullifierHash       string `json:"nullifierHash"`
	SettlementRequestID string `json:"settlementRequestId,omitempty"`
	SettlementStatus    string `json:"settlementStatus,omitempty"`
	TxHash              string `json:"txHash,omitempty"`
	ExplorerURL         string `json:"explorerUrl,omitempty"`
	ZKCompressed        bool   `json:"zkCompressed"`
}

// ErrorBody is the error payload of every non-2xx response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
