package swap

import "strings"

// Submission failures are mapped onto a handful of user-facing messages.
// The raw node error stays attached via wrapping for logs and support.
var errorCategories = []struct {
	category string
	message  string
	match    []string
}{
	{
		category: "insufficient_funds",
		message:  "insufficient funds to cover the swap and gas",
		match:    []string{"insufficient funds", "insufficient balance", "exceeds balance"},
	},
	{
		category: "user_rejected",
		message:  "transaction was rejected by the wallet",
		match:    []string{"user denied", "user rejected", "request rejected"},
	},
	{
		category: "gas_too_high",
		message:  "gas estimate exceeds the configured limit",
		match:    []string{"gas required exceeds", "intrinsic gas too low", "max fee per gas"},
	},
	{
		category: "signer_unavailable",
		message:  "wallet signer is unavailable",
		match:    []string{"no signer", "missing signer", "unknown account"},
	},
	{
		category: "price_moved",
		message:  "price moved beyond the slippage tolerance",
		match:    []string{"slippage", "price moved", "toolittlereceived", "pricelimitexceeded"},
	},
}

func classifyTxError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	for _, c := range errorCategories {
		for _, m := range c.match {
			if strings.Contains(msg, m) {
				return c.message
			}
		}
	}
	return "swap submission failed"
}

func errorCategory(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.ToLower(err.Error())
	for _, c := range errorCategories {
		for _, m := range c.match {
			if strings.Contains(msg, m) {
				return c.category
			}
		}
	}
	return "other"
}
