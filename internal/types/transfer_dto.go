package types

// TransferReq is a native transfer order. Network is "L1" or "L2"; when
// omitted the current network mode is used.
type TransferReq struct {
	Network   string `json:"network,optional"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// FeeQuote carries gas values in wei as decimal strings.
type FeeQuote struct {
	Kind                 string `json:"kind"`
	Fee                  string `json:"fee"`
	GasLimit             uint64 `json:"gas_limit,omitempty"`
	GasEstimated         bool   `json:"gas_estimated"`
	MaxFeePerGas         string `json:"max_fee_per_gas,omitempty"`
	MaxPriorityFeePerGas string `json:"max_priority_fee_per_gas,omitempty"`
	GasPrice             string `json:"gas_price,omitempty"`
}

type EstimateResp struct {
	Network     string   `json:"network"`
	NetworkName string   `json:"network_name"`
	From        string   `json:"from"`
	Recipient   string   `json:"recipient"`
	Amount      string   `json:"amount"`
	Fee         string   `json:"fee"`
	Total       string   `json:"total"`
	Symbol      string   `json:"symbol"`
	Quote       FeeQuote `json:"quote"`
	Warnings    []string `json:"warnings,omitempty"`
}

type SendResp struct {
	Network       string        `json:"network"`
	Phase         string        `json:"phase"`
	TxId          string        `json:"tx_id"`
	ExplorerUrl   string        `json:"explorer_url,omitempty"`
	FormatWarning bool          `json:"format_warning"`
	Recorded      bool          `json:"recorded"`
	Quote         *FeeQuote     `json:"quote,omitempty"`
	Transfer      *TransferItem `json:"transfer,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// TransferItem is one recorded transfer.
type TransferItem struct {
	Id            int64  `json:"id"`
	FromNetwork   string `json:"from_network"`
	ToNetwork     string `json:"to_network"`
	FromAddress   string `json:"from_address"`
	ToAddress     string `json:"to_address"`
	Amount        string `json:"amount"`
	TokenSymbol   string `json:"token_symbol"`
	Status        string `json:"status"`
	TxHash        string `json:"tx_hash"`
	Fee           string `json:"fee"`
	EstimatedTime string `json:"estimated_time"`
	ExplorerUrl   string `json:"explorer_url"`
	CreatedAt     int64  `json:"created_at"`
}

type HistoryReq struct {
	FromAddress string `form:"from_address,optional"`
	ToAddress   string `form:"to_address,optional"`
	Network     string `form:"network,optional"`
	Status      string `form:"status,optional"`
	Limit       int    `form:"limit,optional"`
}

// HistoryResp is always a list. Failed is set, with an empty list, when the
// store could not be read.
type HistoryResp struct {
	Items    []TransferItem `json:"items"`
	Failed   bool           `json:"failed"`
	Attempts int            `json:"attempts"`
	Message  string         `json:"message,omitempty"`
}

type DetailReq struct {
	TxHash string `form:"tx_hash"`
}

// ErrorResp is the body of every failed request.
type ErrorResp struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}
