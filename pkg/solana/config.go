package solana

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

type Environment string

const (
	EnvironmentDev  Environment = "https://api.devnet.solana.com"
	EnvironmentTest Environment = "https://api.testnet.solana.com"
	EnvironmentProd Environment = "https://api.mainnet-beta.solana.com"
)

const explorerBaseURL = "https://explorer.solana.com/tx/"

// EnvironmentFromCluster maps an explorer cluster name to its environment.
// The "custom" cluster links through the provided endpoint.
func EnvironmentFromCluster(cluster, endpoint string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(cluster)) {
	case "mainnet", "mainnet-beta":
		return EnvironmentProd, nil
	case "devnet":
		return EnvironmentDev, nil
	case "testnet":
		return EnvironmentTest, nil
	case "custom":
		if endpoint == "" {
			return "", errors.New("custom cluster requires an endpoint")
		}
		return Environment(endpoint), nil
	}
	return "", errors.Errorf("unknown cluster: %q", cluster)
}

// Cluster returns the explorer cluster name for the environment, or an empty
// string for mainnet and custom endpoints.
func (e Environment) Cluster() string {
	switch e {
	case EnvironmentDev:
		return "devnet"
	case EnvironmentTest:
		return "testnet"
	}
	return ""
}

// ExplorerTransactionURL links to the transaction on the Solana explorer.
// Custom endpoints are passed through as a custom cluster url.
func (e Environment) ExplorerTransactionURL(sig Signature) string {
	switch e {
	case EnvironmentProd:
		return explorerBaseURL + sig.String()
	case EnvironmentDev, EnvironmentTest:
		return fmt.Sprintf("%s%s?cluster=%s", explorerBaseURL, sig, e.Cluster())
	}
	return fmt.Sprintf("%s%s?cluster=custom&customUrl=%s", explorerBaseURL, sig, url.QueryEscape(string(e)))
}
