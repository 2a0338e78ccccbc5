package common

import "fmt"

const explorerBaseURL = "https://explorer.solana.com"

// ExplorerTxURL links a transaction signature on the public explorer.
// An empty or "mainnet-beta" cluster produces a link without the cluster query.
func ExplorerTxURL(signature string, cluster string) string {
	return explorerURL("tx", signature, cluster)
}

func ExplorerAddressURL(address string, cluster string) string {
	return explorerURL("address", address, cluster)
}

func explorerURL(kind, value, cluster string) string {
	if cluster == "" || cluster == "mainnet-beta" || cluster == "mainnet" {
		return fmt.Sprintf("%s/%s/%s", explorerBaseURL, kind, value)
	}
	return fmt.Sprintf("%s/%s/%s?cluster=%s", explorerBaseURL, kind, value, cluster)
}
