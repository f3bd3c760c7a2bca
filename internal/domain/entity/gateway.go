package entity

// Gateway is a public HTTP front for content-addressed storage.
type Gateway struct {
	Name     string
	BaseURL  string
	Priority int
}

// DefaultGateways is the built-in fallback order.
func DefaultGateways() []Gateway {
	return []Gateway{
		{Name: "Pinata", BaseURL: "https://gateway.pinata.cloud", Priority: 1},
		{Name: "IPFS.io", BaseURL: "https://ipfs.io", Priority: 2},
		{Name: "Cloudflare", BaseURL: "https://cloudflare-ipfs.com", Priority: 3},
		{Name: "Dweb.link", BaseURL: "https://dweb.link", Priority: 4},
	}
}
