package types

// ChainReq names a wallet slot, "L1" or "L2".
type ChainReq struct {
	Chain string `json:"chain,optional"`
}

// WalletConnection is the state of one wallet slot. Balances are display
// units; the L2 native and wrapped parts are set only for L2.
type WalletConnection struct {
	Chain          string `json:"chain,optional"`
	Connected      bool   `json:"connected"`
	Address        string `json:"address,omitempty"`
	Balance        string `json:"balance"`
	NativeBalance  string `json:"native_balance,omitempty"`
	WrappedBalance string `json:"wrapped_balance,omitempty"`
	ChainId        string `json:"chain_id,omitempty"`
	// Phase is the transfer phase of this slot, e.g. "idle" or "submitting".
	Phase     string `json:"phase"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

type WalletStateResp struct {
	L1           WalletConnection `json:"l1"`
	L2           WalletConnection `json:"l2"`
	Selected     string           `json:"selected,omitempty"`
	Mode         string           `json:"mode,omitempty"`
	ModeResolved bool             `json:"mode_resolved"`
}

// NetworkDetectResp describes the network the L2 wallet is on.
type NetworkDetectResp struct {
	Label       string `json:"label"`
	Name        string `json:"name"`
	ChainId     string `json:"chain_id"`
	Reported    string `json:"reported_chain_id"`
	Known       bool   `json:"known"`
	Target      string `json:"target"`
	OnTarget    bool   `json:"on_target"`
	Symbol      string `json:"symbol"`
	ExplorerUrl string `json:"explorer_url,omitempty"`
}
