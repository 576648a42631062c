package ledger

import "github.com/tonkeeper/tongo/ton"

// IsValidAddress reports whether text parses as a ledger address.
func IsValidAddress(text string) bool {
	_, err := ton.ParseAccountID(text)
	return err == nil
}

// NormalizeAddress converts any address format to the raw canonical form.
// Addresses are compared only in this form.
func NormalizeAddress(addr string) string {
	if addr == "" {
		return ""
	}

	acc, err := ton.ParseAccountID(addr)
	if err != nil {
		return addr
	}
	return acc.String()
}

// FriendlyAddress converts a raw address to the user-facing format.
func FriendlyAddress(raw string) string {
	if raw == "" {
		return ""
	}

	acc, err := ton.ParseAccountID(raw)
	if err != nil {
		return raw
	}
	return acc.ToHuman(true, false)
}

// ShortAddr returns a shortened address for display
func ShortAddr(addr string, n int) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) < n*2+3 {
		return addr
	}
	return addr[:n] + "..." + addr[len(addr)-n:]
}
