package transfer

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"dualwallet/internal/constant"

	"github.com/zeromicro/go-zero/core/logx"
)

// idFields are the response fields that may carry the transaction id, in
// order of preference.
var idFields = []string{"id", "txId", "txid", "hash", "transactionId", "transaction_id"}

var (
	l1TxIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	l2TxIDPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// ResolvedID is a transaction id extracted from a wallet response.
// FormatWarning is set when the id does not look like a hash of the chain.
type ResolvedID struct {
	ID            string
	FormatWarning bool
}

// ResolveTransactionID extracts the transaction id from whatever the wallet
// returned: a hash string, a (URL encoded) JSON document, a plain string or an
// object. It never panics; a response without an id yields
// ErrTransactionIdMissing.
func ResolveTransactionID(ctx context.Context, c constant.Chain, raw any) (ResolvedID, error) {
	id, ok := extractID(raw)
	if !ok {
		return ResolvedID{}, newError(ErrTransactionIdMissing,
			"the wallet accepted the transfer but returned no transaction id",
			"check the chain explorer for the transaction before trying again", nil)
	}

	res := ResolvedID{ID: id, FormatWarning: !isHashShaped(c, id)}
	if res.FormatWarning {
		logx.WithContext(ctx).Infof("%s transaction id %q does not look like a transaction hash", c, id)
	}
	return res, nil
}

func extractID(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		return fromString(v)
	case json.RawMessage:
		return fromJSON(v)
	case []byte:
		return fromJSON(v)
	case map[string]any:
		return fromFields(v)
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return fromFields(m)
	default:
		// structs and other maps go through their JSON form
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return fromJSON(b)
	}
}

func fromString(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", false
	}
	if isHashShaped(constant.ChainL1, trimmed) || isHashShaped(constant.ChainL2, trimmed) {
		return trimmed, true
	}

	decoded := trimmed
	if d, err := url.PathUnescape(trimmed); err == nil {
		decoded = d
	}

	var parsed any
	if err := json.Unmarshal([]byte(decoded), &parsed); err != nil {
		return trimmed, true
	}
	switch p := parsed.(type) {
	case map[string]any:
		return fromFields(p)
	case string:
		p = strings.TrimSpace(p)
		return p, p != ""
	case nil:
		return "", false
	default:
		return trimmed, true
	}
}

func fromJSON(b []byte) (string, bool) {
	var parsed any
	if err := json.Unmarshal(b, &parsed); err != nil {
		return fromString(string(b))
	}
	switch p := parsed.(type) {
	case map[string]any:
		return fromFields(p)
	case string:
		return fromString(p)
	default:
		return "", false
	}
}

func fromFields(m map[string]any) (string, bool) {
	for _, f := range idFields {
		if s, ok := m[f].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func isHashShaped(c constant.Chain, id string) bool {
	if c == constant.ChainL2 {
		return l2TxIDPattern.MatchString(id)
	}
	return l1TxIDPattern.MatchString(id)
}
