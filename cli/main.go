package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	client    = &http.Client{Timeout: 2 * time.Minute}
)

func main() {
	root := &cobra.Command{
		Use:           "dualwallet",
		Short:         "Client for the dual-wallet transfer API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8888", "transfer API address")

	root.AddCommand(
		newStateCmd(),
		newChainCmd("connect", "Connect the L1 or L2 wallet"),
		newChainCmd("disconnect", "Disconnect the L1 or L2 wallet"),
		newChainCmd("select", "Select the network used when both wallets are connected"),
		newChainCmd("refresh", "Re-read accounts and balances"),
		newDetectCmd(),
		newTransferCmd("estimate", "Quote the fee of a transfer"),
		newTransferCmd("send", "Send a native transfer"),
		newHistoryCmd(),
		newDetailCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show both wallet connections and the network mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(http.MethodGet, "/api/wallet/state", nil, nil)
		},
	}
}

func newChainCmd(name, short string) *cobra.Command {
	args := cobra.ExactArgs(1)
	use := name + " <L1|L2>"
	if name == "refresh" {
		args = cobra.MaximumNArgs(1)
		use = name + " [L1|L2]"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{}
			if len(args) > 0 {
				body["chain"] = args[0]
			}
			return call(http.MethodPost, "/api/wallet/"+name, nil, body)
		},
	}
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Show which network the L2 wallet is on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(http.MethodGet, "/api/network/detect", nil, nil)
		},
	}
}

func newTransferCmd(name, short string) *cobra.Command {
	var network, to, amount string
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(http.MethodPost, "/api/transfer/"+name, nil, map[string]string{
				"network":   network,
				"recipient": to,
				"amount":    amount,
			})
		},
	}
	cmd.Flags().StringVar(&network, "network", "", "L1 or L2, defaults to the current network mode")
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in KAS")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var from, to, network, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded transfers, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			setIf(q, "from_address", from)
			setIf(q, "to_address", to)
			setIf(q, "network", network)
			setIf(q, "status", status)
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			return call(http.MethodGet, "/api/transfer/history", q, nil)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "sender address")
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&network, "network", "", "network name, e.g. kaspa-mainnet")
	cmd.Flags().StringVar(&status, "status", "", "transfer status")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of transfers")
	return cmd
}

func newDetailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detail <tx-hash>",
		Short: "Show one recorded transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/api/transfer/detail", url.Values{"tx_hash": {args[0]}}, nil)
		},
	}
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

// call sends one API request and prints the indented response body.
func call(method, path string, query url.Values, body any) error {
	target := serverURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var out bytes.Buffer
	if json.Indent(&out, raw, "", "  ") != nil {
		out.Reset()
		out.Write(raw)
	}
	fmt.Println(out.String())
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
